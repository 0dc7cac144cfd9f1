// Package backend is a client for the records backend that issues tokens
// and stores patient prescriptions.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/giygas/prescriptions-api/logging"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

const maxBodyBytes = 2 << 20

var (
	ErrUnauthorized       = errors.New("backend rejected the credentials")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrInvalidRole        = errors.New("role must be doctor or patient")
)

// ParseRole accepts "doctor" or "patient" in any case.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleDoctor:
		return RoleDoctor, nil
	case RolePatient:
		return RolePatient, nil
	}
	return "", ErrInvalidRole
}

// Identity is what the backend reports for a verified token.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Raw  json.RawMessage
}

type identityKey struct{}

// NewContext returns a copy of ctx carrying a verified identity.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by NewContext.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Login exchanges a user id for a token. Doctors log in with their NMC id
// and patients with their ABHA id; both keys carry the same value. The
// backend response is returned unchanged.
func (c *Client) Login(ctx context.Context, userID string, role Role) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{
		"abhaId": userID,
		"nmcId":  userID,
		"role":   string(role),
	})
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/auth/token", "", bytes.NewReader(body))
}

// Verify checks token with the backend.
func (c *Client) Verify(ctx context.Context, token string) (Identity, error) {
	raw, err := c.do(ctx, http.MethodPost, "/auth/verify", token, nil)
	if err != nil {
		return Identity{}, err
	}

	var payload struct {
		ID     string `json:"id"`
		UserID string `json:"userId"`
		NMCID  string `json:"nmcId"`
		ABHAID string `json:"abhaId"`
		Role   string `json:"role"`
		User   *struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Identity{}, fmt.Errorf("%w: undecodable verify response: %w", ErrBackendUnavailable, err)
	}

	id := Identity{Raw: raw, Role: Role(strings.ToLower(payload.Role))}
	for _, candidate := range []string{payload.ID, payload.UserID, payload.NMCID, payload.ABHAID} {
		if candidate != "" {
			id.ID = candidate
			break
		}
	}
	if payload.User != nil {
		if id.ID == "" {
			id.ID = payload.User.ID
		}
		if id.Role == "" {
			id.Role = Role(strings.ToLower(payload.User.Role))
		}
	}
	return id, nil
}

// Prescriptions returns the caller's stored prescriptions as sent by the backend.
func (c *Client) Prescriptions(ctx context.Context, token string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/auth/prescriptions", token, nil)
}

// ReportRecord is the metadata the backend keeps for an uploaded document.
type ReportRecord struct {
	ABHAID   string `json:"abhaId,omitempty"`
	FileName string `json:"fileName"`
	Category string `json:"category"`
	URL      string `json:"url"`
}

// Reports lists the caller's recorded documents.
func (c *Client) Reports(ctx context.Context, token string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/auth/getReport", token, nil)
}

// RecordReport saves the metadata of an uploaded document and returns the
// stored record.
func (c *Client) RecordReport(ctx context.Context, token string, record ReportRecord) (json.RawMessage, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/auth/postReport", token, bytes.NewReader(body))
}

func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Warn("Backend request failed", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		logging.Warn("Backend returned an error", "method", method, "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: response is not JSON", ErrBackendUnavailable)
	}
	return json.RawMessage(data), nil
}
