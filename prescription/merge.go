package prescription

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// IDFunc returns a new, never reused, medicine row identifier.
type IDFunc func() string

// NewID generates a random row identifier.
func NewID() string {
	return uuid.NewString()
}

// Merger merges extracted medicines into an existing list.
type Merger struct {
	NewID IDFunc
}

// Merge combines batch into current and returns the new list together with
// the number of medicines that were added.
//
// Incoming medicines whose trimmed, case-folded name already appears in
// current are dropped; the batch is not deduplicated against itself. When
// current is a single placeholder row, the survivors replace it; if nothing
// survives the placeholder is kept. Otherwise survivors are appended.
// current is never modified.
func (m Merger) Merge(current []Medicine, batch []ExtractedMedicine) ([]Medicine, int) {
	newID := m.NewID
	if newID == nil {
		newID = NewID
	}

	onlyPlaceholder := len(current) == 1 && current[0].IsPlaceholder()

	fold := cases.Fold()
	existing := make(map[string]struct{}, len(current))
	for _, med := range current {
		existing[fold.String(strings.TrimSpace(med.Name))] = struct{}{}
	}

	added := make([]Medicine, 0, len(batch))
	for _, med := range batch {
		if _, dup := existing[fold.String(strings.TrimSpace(med.Name))]; dup {
			continue
		}

		days := med.Days
		if days < 0 {
			days = 0
		}

		added = append(added, Medicine{
			ID:        newID(),
			Name:      med.Name,
			Strength:  med.Strength,
			Frequency: NormalizeFrequency(med.Frequency),
			Days:      days,
		})
	}

	if onlyPlaceholder && len(added) > 0 {
		return added, len(added)
	}

	merged := make([]Medicine, 0, len(current)+len(added))
	merged = append(merged, current...)
	merged = append(merged, added...)
	return merged, len(added)
}

// Merge merges batch into current using random row identifiers.
func Merge(current []Medicine, batch []ExtractedMedicine) []Medicine {
	merged, _ := Merger{NewID: NewID}.Merge(current, batch)
	return merged
}
