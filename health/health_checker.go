// Package health reports the health of the prescriptions API.
package health

import (
	"math"
	"net/http"
	"time"

	"github.com/giygas/prescriptions-api/interfaces"
)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	drafts            interfaces.DraftStore
	extractorMode     string
	completionEnabled bool
	sweepInterval     time.Duration
}

// NewHealthChecker creates a new health checker with injected dependencies
func NewHealthChecker(drafts interfaces.DraftStore, extractorMode string, completionEnabled bool, sweepInterval time.Duration) interfaces.HealthChecker {
	return &HealthCheckerImpl{
		drafts:            drafts,
		extractorMode:     extractorMode,
		completionEnabled: completionEnabled,
		sweepInterval:     sweepInterval,
	}
}

// HealthCheck is degraded, still answering 200, when model-backed routes
// cannot work or the sweeper has stalled.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	lastSweep := h.drafts.LastSweep()
	startTime := h.drafts.GetServerStartTime()

	sweepStalled := h.sweepInterval > 0 && !lastSweep.IsZero() && time.Since(lastSweep) > 3*h.sweepInterval

	switch {
	case !h.completionEnabled, sweepStalled:
		status = "degraded"
	default:
		status = "healthy"
	}
	httpStatus = http.StatusOK

	data = map[string]any{
		"drafts":                h.drafts.Count(),
		"extractor":             h.extractorMode,
		"completion_configured": h.completionEnabled,
	}
	if !lastSweep.IsZero() {
		data["last_sweep"] = lastSweep.Format(time.RFC3339)
	}
	if !startTime.IsZero() {
		data["uptime_hours"] = math.Round(time.Since(startTime).Hours()*10) / 10
	}

	return status, data, httpStatus
}
