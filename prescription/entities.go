// Package prescription holds the editable prescription form model and the
// pure transformations applied to it: frequency normalization, merging voice
// extractions into the medicine list, and form-level edits.
package prescription

import "strings"

// Medicine is one row of an editable prescription.
type Medicine struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Strength  string `json:"strength"`
	Frequency string `json:"frequency"`
	Days      int    `json:"days"`
}

// IsPlaceholder reports whether the row has no medicine name yet.
func (m Medicine) IsPlaceholder() bool {
	return strings.TrimSpace(m.Name) == ""
}

// ExtractedMedicine is a medicine produced by an extractor. It has no ID;
// IDs are assigned when the medicine is merged into a list.
type ExtractedMedicine struct {
	Name      string `json:"name"`
	Strength  string `json:"strength"`
	Frequency string `json:"frequency"`
	Days      int    `json:"days"`
}

// Extraction is the structured result of reading a dictated transcript.
type Extraction struct {
	Medicines []ExtractedMedicine `json:"medicines"`
	Notes     string              `json:"notes"`
}
