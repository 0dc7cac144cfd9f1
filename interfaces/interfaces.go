// Package interfaces defines the contracts between the HTTP layer and the
// services it drives, so handlers can be tested with fakes.
package interfaces

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/giygas/prescriptions-api/backend"
	"github.com/giygas/prescriptions-api/data"
	"github.com/giygas/prescriptions-api/extraction"
	"github.com/giygas/prescriptions-api/prescription"
	"github.com/giygas/prescriptions-api/storage"
	"github.com/giygas/prescriptions-api/summary"
)

// DraftStore holds editable prescription forms between requests.
type DraftStore interface {
	Create() data.Draft
	Get(id string) (data.Draft, error)
	Update(id string, fn func(*prescription.Form) error) (data.Draft, error)
	Delete(id string) bool

	// BeginExtraction marks a draft busy; EndExtraction must follow.
	BeginExtraction(id string) error
	EndExtraction(id string)

	Sweep(maxIdle time.Duration) int
	Count() int
	LastSweep() time.Time
	GetServerStartTime() time.Time
}

// PrescriptionExtractor turns a transcript into an extraction.Outcome.
type PrescriptionExtractor interface {
	Extract(ctx context.Context, transcript string) (extraction.Outcome, error)
}

type EmergencyCardGenerator interface {
	Generate(ctx context.Context, patient json.RawMessage) (extraction.Outcome, error)
}

type ReportSummarizer interface {
	Summarize(ctx context.Context, report summary.Report) (string, error)
}

// DocumentStore persists uploaded documents.
type DocumentStore interface {
	Save(ctx context.Context, folder, filename string, r io.Reader) (storage.Object, error)
}

// AuthBackend is the external records backend.
type AuthBackend interface {
	Login(ctx context.Context, userID string, role backend.Role) (json.RawMessage, error)
	Verify(ctx context.Context, token string) (backend.Identity, error)
	Prescriptions(ctx context.Context, token string) (json.RawMessage, error)
	Reports(ctx context.Context, token string) (json.RawMessage, error)
	RecordReport(ctx context.Context, token string, record backend.ReportRecord) (json.RawMessage, error)
}

// HealthChecker reports service health for /health.
type HealthChecker interface {
	HealthCheck() (status string, details map[string]any, httpStatus int)
}

// InputValidator validates user input before it reaches the pipeline.
type InputValidator interface {
	ValidateTranscript(transcript string) error
	ValidateMedicine(patch prescription.MedicinePatch) error
	ValidateNotes(notes string) error
	ValidateID(id string) error
}

// Scheduler runs background maintenance.
type Scheduler interface {
	Start() error
	Stop()
}
