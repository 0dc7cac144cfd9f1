// Package handlers provides the HTTP handlers of the prescriptions API: the
// stateless pipeline routes, server-held prescription drafts, the assistant
// routes backed by the completion model, document upload and the backend
// passthrough routes.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/giygas/prescriptions-api/completion"
	"github.com/giygas/prescriptions-api/extraction"
	"github.com/giygas/prescriptions-api/interfaces"
	"github.com/giygas/prescriptions-api/logging"
)

const parseFailureMessage = "Failed to parse AI output"

// Dependencies are the services the handlers drive. Optional services may be
// nil; their routes then answer 503.
type Dependencies struct {
	Drafts         interfaces.DraftStore
	Extractor      interfaces.PrescriptionExtractor
	EmergencyCards interfaces.EmergencyCardGenerator
	Summarizer     interfaces.ReportSummarizer
	Documents      interfaces.DocumentStore
	Backend        interfaces.AuthBackend
	Validator      interfaces.InputValidator
	Health         interfaces.HealthChecker
}

// HTTPHandler holds the injected dependencies of every route.
type HTTPHandler struct {
	deps Dependencies
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(deps Dependencies) *HTTPHandler {
	return &HTTPHandler{deps: deps}
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// RespondWithJSON writes payload as JSON with the given status.
func (h *HTTPHandler) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.respondRaw(w, code, data)
}

// RespondWithError writes a JSON error response
func (h *HTTPHandler) RespondWithError(w http.ResponseWriter, code int, message string) {
	errorResponse := map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
	h.RespondWithJSON(w, code, errorResponse)
}

func (h *HTTPHandler) respondRaw(w http.ResponseWriter, code int, data []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	w.Write(data)
}

// respondUnparsed answers a model output that could not be decoded.
func (h *HTTPHandler) respondUnparsed(w http.ResponseWriter, u extraction.Unparsed) {
	h.RespondWithJSON(w, http.StatusUnprocessableEntity, map[string]string{
		"error": parseFailureMessage,
		"raw":   u.Raw,
	})
}

// respondExtractionError maps pipeline errors to statuses.
func (h *HTTPHandler) respondExtractionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, extraction.ErrEmptyTranscript):
		h.RespondWithError(w, http.StatusBadRequest, "Transcript is required")
	case errors.Is(err, extraction.ErrInvalidPatient):
		h.RespondWithError(w, http.StatusBadRequest, "Patient data must be a JSON document")
	case errors.Is(err, completion.ErrUpstreamUnavailable):
		logging.Warn("Completion service unavailable", "path", r.URL.Path, "error", err)
		h.RespondWithError(w, http.StatusBadGateway, "The completion service is unavailable, please retry")
	default:
		logging.Error("Extraction failed", "path", r.URL.Path, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// decodeJSON decodes a JSON request body into dst. An empty body is an error.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body too large")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

var serverStartTime = time.Now()

// HealthCheck reports service status, draft statistics and runtime figures.
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	start := serverStartTime
	if h.deps.Drafts != nil {
		if s := h.deps.Drafts.GetServerStartTime(); !s.IsZero() {
			start = s
		}
	}
	uptime := time.Since(start)

	status, details, httpStatus := "healthy", map[string]any{}, http.StatusOK
	if h.deps.Health != nil {
		status, details, httpStatus = h.deps.Health.HealthCheck()
	}

	response := HealthResponse{
		Status:        status,
		Uptime:        formatUptimeHuman(uptime),
		UptimeSeconds: uptime.Seconds(),
		Data:          details,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": int(m.Alloc / 1024 / 1024),
				"sys_mb":   int(m.Sys / 1024 / 1024),
				"num_gc":   m.NumGC,
			},
		},
	}

	h.RespondWithJSON(w, httpStatus, response)
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
