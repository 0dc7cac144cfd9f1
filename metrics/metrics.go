// Package metrics provides Prometheus metrics for the prescriptions API.
// HTTP traffic is tracked by the Metrics middleware; the extraction pipeline,
// the completion client and the draft store record into the domain series.
//
// All metrics are registered with the Prometheus default registry during
// package initialization and served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Extraction outcomes.
const (
	OutcomeParsed     = "parsed"
	OutcomeMalformed  = "malformed"
	OutcomeEmpty      = "empty_transcript"
	OutcomeUpstream   = "upstream_unavailable"
	OutcomeMismatched = "array_mismatch"
)

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets currently tracked",
		},
	)

	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractions_total",
			Help: "Structured extractions by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	CompletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "completion_request_duration_seconds",
			Help:    "Latency of completion API calls",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"model", "status"},
	)

	DraftsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drafts_active",
			Help: "Prescription drafts currently held in memory",
		},
	)

	DraftsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drafts_swept_total",
			Help: "Idle prescription drafts removed by the sweeper",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(ExtractionsTotal)
	prometheus.MustRegister(CompletionDuration)
	prometheus.MustRegister(DraftsActive)
	prometheus.MustRegister(DraftsSweptTotal)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
