// Package completion is a minimal client for OpenAI-compatible chat
// completion APIs. Every call is a single request with one user message;
// failures are returned to the caller without retrying.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/juju/ratelimit"

	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/metrics"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 4 << 20
)

var (
	// ErrUpstreamUnavailable covers transport errors, non-2xx statuses and
	// envelopes that cannot be decoded. Callers may retry the whole request.
	ErrUpstreamUnavailable = errors.New("completion service unavailable")

	ErrUnauthorized = fmt.Errorf("%w: credentials rejected", ErrUpstreamUnavailable)
	ErrNoChoices    = fmt.Errorf("%w: no choices returned", ErrUpstreamUnavailable)
	ErrMissingKey   = errors.New("completion API key is required")
)

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// RatePerSecond caps outbound calls. Zero disables the limiter.
	RatePerSecond float64
	HTTPClient    *http.Client
}

// Request is one completion call.
type Request struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response carries the first choice of a completion.
type Response struct {
	Content      string
	Model        string
	FinishReason string
}

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	bucket     *ratelimit.Bucket
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewClient validates cfg and applies defaults.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}
	if cfg.RatePerSecond > 0 {
		capacity := int64(cfg.RatePerSecond)
		if capacity < 1 {
			capacity = 1
		}
		c.bucket = ratelimit.NewBucketWithRate(cfg.RatePerSecond, capacity)
	}
	return c, nil
}

// Complete sends req as a single user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	if err := c.wait(ctx); err != nil {
		return Response{}, err
	}

	start := time.Now()
	resp, status, err := c.do(ctx, model, req)
	metrics.CompletionDuration.WithLabelValues(model, status).Observe(time.Since(start).Seconds())
	if err != nil {
		logging.Warn("Completion request failed", "model", model, "status", status, "error", err)
		return Response{}, err
	}

	logging.Debug("Completion request finished",
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
		"finish_reason", resp.FinishReason,
		"content_len", len(resp.Content))
	return resp, nil
}

// wait takes one token from the outbound bucket, giving up when ctx ends first.
func (c *Client) wait(ctx context.Context) error {
	if c.bucket == nil {
		return nil
	}

	maxWait := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		maxWait = time.Until(deadline)
	}
	d, ok := c.bucket.TakeMaxDuration(1, maxWait)
	if !ok {
		return fmt.Errorf("%w: outbound rate limit exceeded", ErrUpstreamUnavailable)
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, ctx.Err())
	}
}

func (c *Client) do(ctx context.Context, model string, req Request) (Response, string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Response{}, "error", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Response{}, "error", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, "transport", fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	defer httpResp.Body.Close()

	status := strconv.Itoa(httpResp.StatusCode)
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, status, fmt.Errorf("%w: failed to read response: %w", ErrUpstreamUnavailable, err)
	}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return Response{}, status, ErrUnauthorized
	case httpResp.StatusCode < 200 || httpResp.StatusCode > 299:
		return Response{}, status, fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, httpResp.StatusCode, truncate(body, 256))
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Response{}, status, fmt.Errorf("%w: undecodable envelope: %w", ErrUpstreamUnavailable, err)
	}
	if decoded.Error != nil {
		return Response{}, status, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return Response{}, status, ErrNoChoices
	}

	choice := decoded.Choices[0]
	return Response{
		Content:      choice.Message.Content,
		Model:        decoded.Model,
		FinishReason: choice.FinishReason,
	}, status, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
