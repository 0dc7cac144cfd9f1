package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/giygas/prescriptions-api/completion"
	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/metrics"
)

const sourceLLM = "llm"

// PrescriptionExtractor extracts medicines from a dictated transcript with
// one completion call per transcript.
type PrescriptionExtractor struct {
	completer Completer
	model     string
}

// NewPrescriptionExtractor uses model for every call; empty means the client default.
func NewPrescriptionExtractor(completer Completer, model string) *PrescriptionExtractor {
	return &PrescriptionExtractor{completer: completer, model: model}
}

// Extract returns Parsed or Unparsed. The error is ErrEmptyTranscript
// before any call is made, or wraps completion.ErrUpstreamUnavailable.
func (e *PrescriptionExtractor) Extract(ctx context.Context, transcript string) (Outcome, error) {
	transcript = norm.NFC.String(strings.TrimSpace(transcript))
	if transcript == "" {
		metrics.ExtractionsTotal.WithLabelValues(sourceLLM, metrics.OutcomeEmpty).Inc()
		return nil, ErrEmptyTranscript
	}

	resp, err := e.completer.Complete(ctx, completion.Request{
		Model:       e.model,
		Prompt:      PrescriptionPrompt(transcript),
		Temperature: 0,
	})
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues(sourceLLM, metrics.OutcomeUpstream).Inc()
		if !errors.Is(err, completion.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %w", completion.ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	outcome, mismatch := parsePrescription(resp.Content)
	if mismatch {
		metrics.ExtractionsTotal.WithLabelValues(sourceLLM, metrics.OutcomeMismatched).Inc()
	}

	switch o := outcome.(type) {
	case Parsed:
		metrics.ExtractionsTotal.WithLabelValues(sourceLLM, metrics.OutcomeParsed).Inc()
		logging.Debug("Transcript extracted", "medicines", len(o.Extraction.Medicines), "has_notes", o.Extraction.Notes != "")
	case Unparsed:
		metrics.ExtractionsTotal.WithLabelValues(sourceLLM, metrics.OutcomeMalformed).Inc()
		logging.Warn("Completion output could not be parsed", "error", o.Err, "content_len", len(o.Raw))
	}
	return outcome, nil
}
