// Package data holds the server-side prescription drafts. Each draft is an
// editable prescription.Form guarded by its own mutex; a busy flag rejects
// a second voice extraction while one is outstanding.
package data

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/metrics"
	"github.com/giygas/prescriptions-api/prescription"
)

var (
	ErrDraftNotFound        = errors.New("draft not found")
	ErrExtractionInProgress = errors.New("an extraction is already in progress for this draft")
)

// Draft is a point-in-time copy of a stored draft.
type Draft struct {
	ID         string
	Form       *prescription.Form
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Extracting bool
}

type entry struct {
	mu         sync.Mutex
	form       *prescription.Form
	createdAt  time.Time
	updatedAt  time.Time
	extracting atomic.Bool
	removed    bool
}

func (e *entry) snapshot(id string) Draft {
	return Draft{
		ID:         id,
		Form:       e.form.Clone(),
		CreatedAt:  e.createdAt,
		UpdatedAt:  e.updatedAt,
		Extracting: e.extracting.Load(),
	}
}

// DraftStore is an in-memory store of drafts keyed by id.
type DraftStore struct {
	mu              sync.RWMutex
	drafts          map[string]*entry
	lastSweep       atomic.Value // time.Time
	serverStartTime atomic.Value // time.Time
	now             func() time.Time
}

// NewDraftStore creates an empty store.
func NewDraftStore() *DraftStore {
	s := &DraftStore{
		drafts: make(map[string]*entry),
		now:    time.Now,
	}
	s.lastSweep.Store(time.Time{})
	s.serverStartTime.Store(time.Time{})
	return s
}

// Create stores a new form with a single placeholder row.
func (s *DraftStore) Create() Draft {
	now := s.now()
	id := uuid.NewString()
	e := &entry{
		form:      prescription.NewForm(),
		createdAt: now,
		updatedAt: now,
	}

	s.mu.Lock()
	s.drafts[id] = e
	count := len(s.drafts)
	s.mu.Unlock()

	metrics.DraftsActive.Set(float64(count))
	logging.Debug("Draft created", "draft_id", id)
	return e.snapshot(id)
}

func (s *DraftStore) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.drafts[id]
	return e, ok
}

// Get returns a copy of the draft.
func (s *DraftStore) Get(id string) (Draft, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Draft{}, ErrDraftNotFound
	}
	return e.snapshot(id), nil
}

// Update runs fn on the stored form under the draft lock. If fn returns an
// error the error is returned and the timestamp is left alone; fn is
// responsible for not leaving the form half-edited.
func (s *DraftStore) Update(id string, fn func(*prescription.Form) error) (Draft, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Draft{}, ErrDraftNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Draft{}, ErrDraftNotFound
	}
	if err := fn(e.form); err != nil {
		return e.snapshot(id), err
	}
	e.updatedAt = s.now()
	return e.snapshot(id), nil
}

// BeginExtraction marks the draft busy and switches it to voice input.
func (s *DraftStore) BeginExtraction(id string) error {
	e, ok := s.lookup(id)
	if !ok {
		return ErrDraftNotFound
	}
	if !e.extracting.CompareAndSwap(false, true) {
		return ErrExtractionInProgress
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		e.extracting.Store(false)
		return ErrDraftNotFound
	}
	e.form.SetMode(prescription.ModeVoiceInput)
	e.updatedAt = s.now()
	return nil
}

// EndExtraction clears the busy flag.
func (s *DraftStore) EndExtraction(id string) {
	if e, ok := s.lookup(id); ok {
		e.extracting.Store(false)
	}
}

// Delete removes a draft. It reports whether the draft existed.
func (s *DraftStore) Delete(id string) bool {
	s.mu.Lock()
	e, ok := s.drafts[id]
	if ok {
		delete(s.drafts, id)
	}
	count := len(s.drafts)
	s.mu.Unlock()

	if !ok {
		return false
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()

	metrics.DraftsActive.Set(float64(count))
	return true
}

// Sweep removes drafts not updated for maxIdle. Drafts with an extraction
// in flight are kept.
func (s *DraftStore) Sweep(maxIdle time.Duration) int {
	now := s.now()
	cutoff := now.Add(-maxIdle)

	s.mu.Lock()
	removed := make([]*entry, 0)
	for id, e := range s.drafts {
		if e.extracting.Load() {
			continue
		}
		e.mu.Lock()
		stale := e.updatedAt.Before(cutoff)
		if stale {
			e.removed = true
		}
		e.mu.Unlock()
		if stale {
			delete(s.drafts, id)
			removed = append(removed, e)
		}
	}
	count := len(s.drafts)
	s.mu.Unlock()

	s.lastSweep.Store(now)
	metrics.DraftsActive.Set(float64(count))
	if len(removed) > 0 {
		metrics.DraftsSweptTotal.Add(float64(len(removed)))
		logging.Info("Idle drafts removed", "count", len(removed), "remaining", count)
	}
	return len(removed)
}

// Count returns the number of stored drafts.
func (s *DraftStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

// LastSweep returns when Sweep last ran, or the zero time.
func (s *DraftStore) LastSweep() time.Time {
	if v, ok := s.lastSweep.Load().(time.Time); ok {
		return v
	}
	return time.Time{}
}

// SetServerStartTime sets the server start time
func (s *DraftStore) SetServerStartTime(startTime time.Time) {
	s.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (s *DraftStore) GetServerStartTime() time.Time {
	if v, ok := s.serverStartTime.Load().(time.Time); ok {
		return v
	}
	logging.Warn("Could not get the server start time value")
	return time.Time{}
}
