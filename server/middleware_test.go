package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/giygas/prescriptions-api/backend"
)

type stubAuth struct {
	identity backend.Identity
	err      error
}

func (s stubAuth) Login(ctx context.Context, userID string, role backend.Role) (json.RawMessage, error) {
	return nil, errors.New("not used")
}

func (s stubAuth) Verify(ctx context.Context, token string) (backend.Identity, error) {
	if s.err != nil {
		return backend.Identity{}, s.err
	}
	return s.identity, nil
}

func (s stubAuth) Prescriptions(ctx context.Context, token string) (json.RawMessage, error) {
	return nil, errors.New("not used")
}

func (s stubAuth) Reports(ctx context.Context, token string) (json.RawMessage, error) {
	return nil, errors.New("not used")
}

func (s stubAuth) RecordReport(ctx context.Context, token string, record backend.ReportRecord) (json.RawMessage, error) {
	return nil, errors.New("not used")
}

func TestGetTokenCost(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		path         string
		expectedCost int64
	}{
		{"health is free", "GET", "/health", 0},
		{"metrics is free", "GET", "/metrics", 0},
		{"parse prescription", "POST", "/v1/prescriptions/parse", 100},
		{"merge prescription", "POST", "/v1/prescriptions/merge", 100},
		{"emergency card", "POST", "/v1/emergency-card", 100},
		{"summarize", "POST", "/v1/summarize", 100},
		{"voice transcript", "POST", "/v1/drafts/0b9d3c1e-4a57-4f43-9c1f-6f6b1d3f0a11/voice", 100},
		{"upload", "POST", "/v1/upload", 50},
		{"stored file", "GET", "/files/my-documents/a.pdf", 10},
		{"draft edit", "PATCH", "/v1/drafts/0b9d3c1e-4a57-4f43-9c1f-6f6b1d3f0a11/medicines/m1", 5},
		{"create draft", "POST", "/v1/drafts", 5},
		{"login", "POST", "/v1/auth/token", 20},
		{"unknown", "GET", "/unknown", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if cost := getTokenCost(req); cost != tt.expectedCost {
				t.Errorf("Expected cost %d for path %s, got %d", tt.expectedCost, tt.path, cost)
			}
		})
	}
}

func TestRealIPMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		xff      string
		expected string
	}{
		{"single forwarded IP", "203.0.113.1", "203.0.113.1"},
		{"first of several", "203.0.113.1, 10.0.0.1", "203.0.113.1"},
		{"no header keeps RemoteAddr", "", "192.168.1.1:12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			var seen string
			handler := RealIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = r.RemoteAddr
			}))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if seen != tt.expected {
				t.Errorf("Expected RemoteAddr %q, got %q", tt.expected, seen)
			}
		})
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	var readErr error
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestSizeMiddleware(10, 1024, 100)(next)

	tests := []struct {
		name           string
		path           string
		body           string
		expectedStatus int
	}{
		{"within body limit", "/v1/prescriptions/parse", "0123456789", http.StatusOK},
		{"exceeds body limit", "/v1/prescriptions/parse", "01234567890", http.StatusRequestEntityTooLarge},
		{"upload has its own limit", uploadPath, strings.Repeat("x", 50), http.StatusOK},
		{"exceeds upload limit", uploadPath, strings.Repeat("x", 101), http.StatusRequestEntityTooLarge},
		{"no body", "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
		})
	}

	t.Run("unknown length is capped while reading", func(t *testing.T) {
		readErr = nil
		req := httptest.NewRequest("POST", "/v1/prescriptions/parse", strings.NewReader(strings.Repeat("x", 20)))
		req.ContentLength = -1
		handler.ServeHTTP(httptest.NewRecorder(), req)

		var maxErr *http.MaxBytesError
		if !errors.As(readErr, &maxErr) {
			t.Errorf("Expected a MaxBytesError, got %v", readErr)
		}
	})

	t.Run("oversized headers", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set("X-Large", strings.Repeat("h", 2048))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusRequestHeaderFieldsTooLarge {
			t.Errorf("Expected status 431, got %d", rr.Code)
		}
	})
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 150)
	defer rl.Stop()
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(path, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send("/v1/prescriptions/parse", "10.0.0.1"); rr.Code != http.StatusOK {
		t.Fatalf("First extraction should pass, got %d", rr.Code)
	}
	rr := send("/v1/prescriptions/parse", "10.0.0.1")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Second extraction should be limited, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected a Retry-After header")
	}
	if rr := send("/v1/drafts", "10.0.0.1"); rr.Code != http.StatusOK {
		t.Errorf("Cheap routes should still pass with the remaining tokens, got %d", rr.Code)
	}
	if rr := send("/v1/prescriptions/parse", "10.0.0.2"); rr.Code != http.StatusOK {
		t.Errorf("Clients have separate buckets, got %d", rr.Code)
	}
	if rr := send("/health", "10.0.0.1"); rr.Code != http.StatusOK {
		t.Errorf("Free routes are never limited, got %d", rr.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 100)
	defer rl.Stop()

	rl.getBucket("idle").Available()
	rl.getBucket("busy").TakeAvailable(50)

	if removed := rl.cleanup(); removed != 1 {
		t.Errorf("Expected one idle bucket removed, got %d", removed)
	}
	rl.mu.RLock()
	_, busy := rl.clients["busy"]
	rl.mu.RUnlock()
	if !busy {
		t.Error("A bucket still refilling must be kept")
	}
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name           string
		auth           stubAuth
		header         string
		expectedStatus int
	}{
		{"doctor allowed", stubAuth{identity: backend.Identity{ID: "d1", Role: backend.RoleDoctor}}, "Bearer t", http.StatusOK},
		{"patient forbidden", stubAuth{identity: backend.Identity{ID: "p1", Role: backend.RolePatient}}, "Bearer t", http.StatusForbidden},
		{"missing token", stubAuth{}, "", http.StatusUnauthorized},
		{"rejected token", stubAuth{err: backend.ErrUnauthorized}, "Bearer t", http.StatusUnauthorized},
		{"backend down", stubAuth{err: backend.ErrBackendUnavailable}, "Bearer t", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var identity backend.Identity
			handler := BearerAuth(tt.auth, backend.RoleDoctor)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, _ = backend.IdentityFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/v1/drafts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if tt.expectedStatus == http.StatusOK && identity.ID != "d1" {
				t.Errorf("Expected the verified identity in the context, got %+v", identity)
			}
		})
	}
}
