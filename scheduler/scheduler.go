// Package scheduler runs the background maintenance of the draft store:
// a gocron job that sweeps idle drafts and a monitor that warns when
// sweeping stalls or drafts pile up.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/giygas/prescriptions-api/interfaces"
	"github.com/giygas/prescriptions-api/logging"
)

const (
	DefaultSweepInterval = 10 * time.Minute
	draftWarnThreshold   = 5000
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

type Scheduler struct {
	drafts        interfaces.DraftStore
	maxIdle       time.Duration
	sweepInterval time.Duration
	scheduler     *gocron.Scheduler

	stopOnce sync.Once
	stop     chan struct{}
}

// NewScheduler sweeps drafts idle for longer than maxIdle every sweepInterval.
func NewScheduler(drafts interfaces.DraftStore, maxIdle, sweepInterval time.Duration) *Scheduler {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Scheduler{
		drafts:        drafts,
		maxIdle:       maxIdle,
		sweepInterval: sweepInterval,
		scheduler:     gocron.NewScheduler(time.Local),
		stop:          make(chan struct{}),
	}
}

// Start schedules the sweep, running it once immediately, and starts monitoring.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.sweepInterval).Do(s.sweep)
	if err != nil {
		logging.Error("Failed to schedule draft sweep", "error", err)
		return fmt.Errorf("failed to schedule draft sweep: %w", err)
	}

	s.scheduler.StartAsync()
	s.startHealthMonitoring(time.Hour)

	logging.Info("Draft sweeper started", "interval", s.sweepInterval.String(), "max_idle", s.maxIdle.String())
	return nil
}

// Stop stops the sweep job and the monitor.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Scheduler) sweep() {
	start := time.Now()
	removed := s.drafts.Sweep(s.maxIdle)
	logging.Debug("Draft sweep completed",
		"removed", removed,
		"remaining", s.drafts.Count(),
		"duration", time.Since(start).String())
}

// checkHealth logs a warning when sweeping has stalled or drafts pile up.
func (s *Scheduler) checkHealth(now time.Time) []string {
	var warnings []string

	if last := s.drafts.LastSweep(); !last.IsZero() && now.Sub(last) > 3*s.sweepInterval {
		warnings = append(warnings, "draft sweep has not run recently")
		logging.Warn("Draft sweep has not run recently", "last_sweep", last.Format(time.RFC3339))
	}
	if count := s.drafts.Count(); count > draftWarnThreshold {
		warnings = append(warnings, "draft count above threshold")
		logging.Warn("Draft count above threshold", "count", count, "threshold", draftWarnThreshold)
	}
	return warnings
}

func (s *Scheduler) startHealthMonitoring(every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case now := <-ticker.C:
				s.checkHealth(now)
			}
		}
	}()
}
