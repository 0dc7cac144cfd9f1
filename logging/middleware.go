// Package logging sets up the process slog logger and the request logging middleware.
package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// routeParams are the URL parameters worth a log attribute of their own.
var routeParams = map[string]string{
	"id":         "draft_id",
	"medicineId": "medicine_id",
}

// LoggingMiddleware logs each request once it completes, skipping /health
// and /metrics. Requests are identified by their chi route pattern so stored
// file names never reach the log. Bodies are never logged since transcripts
// carry patient data.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []any{
				"request_id", requestID(r),
				"method", r.Method,
			}
			attrs = append(attrs, routeAttrs(r)...)
			if r.URL.RawQuery != "" {
				attrs = append(attrs, "query", r.URL.RawQuery)
			}
			attrs = append(attrs,
				"remote_addr", r.RemoteAddr,
				"status_code", status,
				"bytes_written", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)

			logger.Log(r.Context(), levelFor(status), "HTTP request", attrs...)
		})
	}
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(middleware.RequestIDKey).(string); ok && id != "" {
		return id
	}
	return "unknown"
}

// routeAttrs names the matched route and its ids. Unrouted requests fall
// back to the raw path.
func routeAttrs(r *http.Request) []any {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.RoutePattern() == "" {
		return []any{"route", r.URL.Path}
	}

	attrs := []any{"route", rctx.RoutePattern()}
	for i, key := range rctx.URLParams.Keys {
		if name, ok := routeParams[key]; ok && i < len(rctx.URLParams.Values) {
			attrs = append(attrs, name, rctx.URLParams.Values[i])
		}
	}
	return attrs
}

// levelFor raises server failures to ERROR and throttled clients to WARN.
func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusTooManyRequests:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
