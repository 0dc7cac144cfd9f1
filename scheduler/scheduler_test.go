package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/giygas/prescriptions-api/data"
	"github.com/giygas/prescriptions-api/prescription"
)

// mockDraftStore records sweeps for the scheduler tests
type mockDraftStore struct {
	mu        sync.Mutex
	sweeps    int
	maxIdle   time.Duration
	count     int
	lastSweep time.Time
}

func (m *mockDraftStore) Create() data.Draft                { return data.Draft{} }
func (m *mockDraftStore) Get(id string) (data.Draft, error) { return data.Draft{}, data.ErrDraftNotFound }
func (m *mockDraftStore) Delete(id string) bool             { return false }
func (m *mockDraftStore) BeginExtraction(id string) error   { return nil }
func (m *mockDraftStore) EndExtraction(id string)           {}
func (m *mockDraftStore) GetServerStartTime() time.Time     { return time.Time{} }
func (m *mockDraftStore) Update(id string, fn func(*prescription.Form) error) (data.Draft, error) {
	return data.Draft{}, data.ErrDraftNotFound
}

func (m *mockDraftStore) Sweep(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
	m.maxIdle = maxIdle
	m.lastSweep = time.Now()
	return 0
}

func (m *mockDraftStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *mockDraftStore) LastSweep() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSweep
}

func (m *mockDraftStore) sweepCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweeps
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(&mockDraftStore{}, time.Hour, 0)
	if s.sweepInterval != DefaultSweepInterval {
		t.Errorf("Expected default interval %s, got %s", DefaultSweepInterval, s.sweepInterval)
	}
}

func TestStartRunsSweepImmediately(t *testing.T) {
	store := &mockDraftStore{}
	s := NewScheduler(store, 2*time.Hour, time.Hour)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for store.sweepCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if store.sweepCount() == 0 {
		t.Fatal("Expected the sweep to run on start")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.maxIdle != 2*time.Hour {
		t.Errorf("Expected max idle 2h, got %s", store.maxIdle)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewScheduler(&mockDraftStore{}, time.Hour, time.Hour)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()
	s.Stop()
}

func TestCheckHealth(t *testing.T) {
	now := time.Now()

	t.Run("healthy", func(t *testing.T) {
		store := &mockDraftStore{lastSweep: now.Add(-time.Minute), count: 3}
		s := NewScheduler(store, time.Hour, 10*time.Minute)
		if w := s.checkHealth(now); len(w) != 0 {
			t.Errorf("Expected no warnings, got %v", w)
		}
	})

	t.Run("never swept", func(t *testing.T) {
		s := NewScheduler(&mockDraftStore{}, time.Hour, 10*time.Minute)
		if w := s.checkHealth(now); len(w) != 0 {
			t.Errorf("Expected no warnings before the first sweep, got %v", w)
		}
	})

	t.Run("stalled and crowded", func(t *testing.T) {
		store := &mockDraftStore{lastSweep: now.Add(-time.Hour), count: draftWarnThreshold + 1}
		s := NewScheduler(store, time.Hour, 10*time.Minute)
		if w := s.checkHealth(now); len(w) != 2 {
			t.Errorf("Expected 2 warnings, got %v", w)
		}
	})
}
