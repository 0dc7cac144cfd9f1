package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Metrics)
	router.Get("/v1/drafts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues("GET", "/v1/drafts/{id}", "418"))

	req := httptest.NewRequest(http.MethodGet, "/v1/drafts/abc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	after := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues("GET", "/v1/drafts/{id}", "418"))
	if after-before != 1 {
		t.Errorf("Expected counter to increase by 1, got %v", after-before)
	}

	if got := testutil.ToFloat64(HTTPRequestInFlight); got != 0 {
		t.Errorf("Expected no in-flight requests after completion, got %v", got)
	}
}

func TestHandlerExposesDomainMetrics(t *testing.T) {
	ExtractionsTotal.WithLabelValues("llm", OutcomeParsed).Inc()
	DraftsActive.Set(3)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	for _, name := range []string{"extractions_total", "drafts_active", "http_request_in_flight"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected %s in metrics output", name)
		}
	}
}
