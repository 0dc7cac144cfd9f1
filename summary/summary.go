// Package summary produces plain-language summaries of uploaded medical reports.
package summary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/giygas/prescriptions-api/completion"
	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/storage"
)

const (
	DefaultModel   = "gpt-4.1"
	NoSummary      = "No summary generated"
	maxReportBytes = 20 << 20
	dateLayout     = "Mon Jan 02 2006"
)

var (
	ErrMissingFileURL = errors.New("fileUrl is required")
	ErrFetchFailed    = errors.New("failed to fetch report")
	ErrUnreadablePDF  = errors.New("report is not a readable PDF")
	ErrURLNotAllowed  = errors.New("report URL is not allowed")

	ErrDocumentNotFound = storage.ErrNotFound

	// sharedAddressSpace is the carrier-grade NAT range, not covered by netip.
	sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")
)

// Completer is the subset of the completion client used here.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (completion.Response, error)
}

// LocalDocuments resolves URLs of documents this service stores itself.
// ok is false for URLs it does not own.
type LocalDocuments interface {
	ReadURL(fileURL string) (data []byte, ok bool, err error)
}

// TextExtractor returns the plain text of a PDF document.
type TextExtractor func(data []byte) (string, error)

// Report identifies an uploaded document to summarize.
type Report struct {
	FileURL    string `json:"fileUrl"`
	FileName   string `json:"fileName"`
	Category   string `json:"category"`
	UploadedAt string `json:"uploadedAt"`
}

type Summarizer struct {
	httpClient *http.Client
	completer  Completer
	model      string
	extract    TextExtractor
	local      LocalDocuments
}

// Option customizes a Summarizer.
type Option func(*Summarizer)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Summarizer) { s.httpClient = c }
}

func WithTextExtractor(fn TextExtractor) Option {
	return func(s *Summarizer) { s.extract = fn }
}

// WithLocalDocuments reads stored documents from docs instead of over HTTP.
func WithLocalDocuments(docs LocalDocuments) Option {
	return func(s *Summarizer) { s.local = docs }
}

// publicHTTPClient refuses to connect to loopback, private, link-local and
// other non-public addresses, including after redirects and DNS resolution.
func publicHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: refuseNonPublic,
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func refuseNonPublic(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrURLNotAllowed, err)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrURLNotAllowed, err)
	}
	if !isPublic(ip) {
		return fmt.Errorf("%w: %s is not a public address", ErrURLNotAllowed, ip)
	}
	return nil
}

func isPublic(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsGlobalUnicast() &&
		!ip.IsPrivate() &&
		!ip.IsLoopback() &&
		!ip.IsLinkLocalUnicast() &&
		!sharedAddressSpace.Contains(ip)
}

func NewSummarizer(completer Completer, model string, opts ...Option) *Summarizer {
	if model == "" {
		model = DefaultModel
	}
	s := &Summarizer{
		httpClient: publicHTTPClient(30 * time.Second),
		completer:  completer,
		model:      model,
		extract:    PDFText,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize fetches the report, extracts its text and asks the model for a
// summary. An empty model answer yields NoSummary.
func (s *Summarizer) Summarize(ctx context.Context, report Report) (string, error) {
	if strings.TrimSpace(report.FileURL) == "" {
		return "", ErrMissingFileURL
	}

	data, err := s.load(ctx, strings.TrimSpace(report.FileURL))
	if err != nil {
		return "", err
	}

	text, err := s.extract(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadablePDF, err)
	}

	resp, err := s.completer.Complete(ctx, completion.Request{
		Model:  s.model,
		Prompt: Prompt(report, text),
	})
	if err != nil {
		return "", err
	}

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return NoSummary, nil
	}
	logging.Debug("Report summarized", "file_name", report.FileName, "text_len", len(text), "summary_len", len(out))
	return out, nil
}

// load reads stored documents locally and fetches anything else over http(s).
func (s *Summarizer) load(ctx context.Context, fileURL string) ([]byte, error) {
	if s.local != nil {
		data, ok, err := s.local.ReadURL(fileURL)
		switch {
		case ok && err != nil:
			return nil, err
		case ok:
			return data, nil
		}
	}

	u, err := url.Parse(fileURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrURLNotAllowed, fileURL)
	}
	return s.fetch(ctx, u.String())
}

func (s *Summarizer) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if len(data) > maxReportBytes {
		return nil, fmt.Errorf("%w: report larger than %d bytes", ErrFetchFailed, maxReportBytes)
	}
	return data, nil
}

// Prompt builds the summarization prompt.
func Prompt(report Report, text string) string {
	fileName := report.FileName
	if fileName == "" {
		fileName = "Unknown"
	}
	category := report.Category
	if category == "" {
		category = "General"
	}

	return fmt.Sprintf(`You are a helpful medical assistant. Summarize the following medical report clearly and concisely.
- File Name: %s
- Category: %s
- Uploaded On: %s

Report Content:
%s`, fileName, category, uploadedOn(report.UploadedAt), text)
}

// uploadedOn renders an RFC 3339 or date-only timestamp; anything else is echoed.
func uploadedOn(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "N/A"
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(dateLayout)
		}
	}
	return value
}

// PDFText extracts the text of every page, one page per line.
func PDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		sb.WriteString(strings.TrimSpace(content))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
