// Package extraction turns free text into structured prescription data by
// prompting a completion model, and parses the model's JSON back into
// prescription types.
//
// A completion that cannot be parsed is not an error: it is returned as an
// Unparsed outcome carrying the raw content, so callers can surface it.
package extraction

import (
	"context"
	"errors"

	"github.com/giygas/prescriptions-api/completion"
	"github.com/giygas/prescriptions-api/prescription"
)

// ErrEmptyTranscript is returned when the transcript is empty after trimming.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Completer is the subset of the completion client used here.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (completion.Response, error)
}

// Outcome is one of Parsed, ParsedCard or Unparsed.
type Outcome interface {
	isOutcome()
}

// Parsed is a successfully decoded prescription extraction. Raw holds the
// decoded model object as returned, without code fences.
type Parsed struct {
	Extraction prescription.Extraction
	Raw        []byte
}

// ParsedCard is a successfully decoded emergency card.
type ParsedCard struct {
	Card EmergencyCard
	Raw  []byte
}

// Unparsed holds model output that could not be decoded.
type Unparsed struct {
	Raw string
	Err error
}

func (Parsed) isOutcome()     {}
func (ParsedCard) isOutcome() {}
func (Unparsed) isOutcome()   {}
