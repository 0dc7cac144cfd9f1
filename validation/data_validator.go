// Package validation checks user input before it reaches the prescription pipeline.
package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/giygas/prescriptions-api/interfaces"
	"github.com/giygas/prescriptions-api/prescription"
)

const (
	MaxTranscriptRunes = 5000
	MaxNotesRunes      = 2000
	MaxNameRunes       = 200
	MaxFieldRunes      = 50
	MaxDays            = 365

	maxRepeatedRune = 30
)

// Transcripts are free speech, so only markup and script injection is rejected.
var dangerousPatterns = []string{
	"<script", "</script>", "<iframe", "<object", "<embed", "<svg",
	"javascript:", "vbscript:", "data:text/html",
	"onload=", "onerror=", "onclick=", "onmouseover=", "onfocus=",
}

// DataValidatorImpl implements the interfaces.InputValidator interface
type DataValidatorImpl struct{}

var _ interfaces.InputValidator = (*DataValidatorImpl)(nil)

// NewDataValidator creates a new input validator
func NewDataValidator() *DataValidatorImpl {
	return &DataValidatorImpl{}
}

// ValidateTranscript accepts any non-empty UTF-8 text up to MaxTranscriptRunes.
func (v *DataValidatorImpl) ValidateTranscript(transcript string) error {
	if strings.TrimSpace(transcript) == "" {
		return fmt.Errorf("transcript cannot be empty")
	}
	if err := v.validateText("transcript", transcript, MaxTranscriptRunes); err != nil {
		return err
	}
	if hasExcessiveRepetition(transcript) {
		return fmt.Errorf("transcript contains excessive character repetition")
	}
	return nil
}

// ValidateMedicine checks the fields present in a row edit.
func (v *DataValidatorImpl) ValidateMedicine(patch prescription.MedicinePatch) error {
	if patch.Name != nil {
		if err := v.validateText("name", *patch.Name, MaxNameRunes); err != nil {
			return err
		}
	}
	if patch.Strength != nil {
		if err := v.validateText("strength", *patch.Strength, MaxFieldRunes); err != nil {
			return err
		}
	}
	if patch.Frequency != nil {
		if err := v.validateText("frequency", *patch.Frequency, MaxFieldRunes); err != nil {
			return err
		}
	}
	if patch.Days != nil && (*patch.Days < 0 || *patch.Days > MaxDays) {
		return fmt.Errorf("days must be between 0 and %d", MaxDays)
	}
	return nil
}

// ValidateNotes allows empty notes.
func (v *DataValidatorImpl) ValidateNotes(notes string) error {
	return v.validateText("notes", notes, MaxNotesRunes)
}

// ValidateID checks that id is a UUID as issued by the draft store.
func (v *DataValidatorImpl) ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

func (v *DataValidatorImpl) validateText(field, value string, maxRunes int) error {
	if !utf8.ValidString(value) {
		return fmt.Errorf("%s must be valid UTF-8", field)
	}
	if n := utf8.RuneCountInString(value); n > maxRunes {
		return fmt.Errorf("%s too long: maximum %d characters", field, maxRunes)
	}
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return fmt.Errorf("%s contains control characters", field)
		}
	}

	lower := strings.ToLower(value)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%s contains potentially dangerous content", field)
		}
	}
	return nil
}

// hasExcessiveRepetition reports a rune repeated more than maxRepeatedRune times in a row
func hasExcessiveRepetition(input string) bool {
	var prev rune
	run := 0
	for _, r := range input {
		if r == prev {
			run++
			if run > maxRepeatedRune {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}
