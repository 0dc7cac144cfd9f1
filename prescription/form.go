package prescription

import (
	"fmt"
	"strings"
)

// Mode is the entry mode of a prescription form.
type Mode string

const (
	ModeManualEntry Mode = "manual"
	ModeVoiceInput  Mode = "voice"
)

// ParseMode converts the wire value of a mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeManualEntry:
		return ModeManualEntry, nil
	case ModeVoiceInput:
		return ModeVoiceInput, nil
	}
	return "", fmt.Errorf("unknown mode %q, expected %q or %q", s, ModeManualEntry, ModeVoiceInput)
}

// MedicinePatch is a field-level edit of a row. Nil fields are left as is.
type MedicinePatch struct {
	Name      *string `json:"name,omitempty"`
	Strength  *string `json:"strength,omitempty"`
	Frequency *string `json:"frequency,omitempty"`
	Days      *int    `json:"days,omitempty"`
}

// Form is the editable state of one prescription. A Form is owned by a single
// caller and is not safe for concurrent use.
type Form struct {
	Medicines []Medicine `json:"medicines"`
	Notes     string     `json:"notes"`
	Mode      Mode       `json:"mode"`

	newID IDFunc
}

// NewForm returns a form holding a single placeholder row.
func NewForm() *Form {
	return NewFormWithIDs(NewID)
}

// NewFormWithIDs is NewForm with a custom row identifier source.
func NewFormWithIDs(newID IDFunc) *Form {
	if newID == nil {
		newID = NewID
	}
	f := &Form{newID: newID}
	f.Reset()
	return f
}

// Reset returns the form to its initial state.
func (f *Form) Reset() {
	f.Medicines = []Medicine{f.emptyRow()}
	f.Notes = ""
	f.Mode = ModeManualEntry
}

func (f *Form) emptyRow() Medicine {
	if f.newID == nil {
		f.newID = NewID
	}
	return Medicine{ID: f.newID()}
}

// AddRow appends an empty row and returns it.
func (f *Form) AddRow() Medicine {
	row := f.emptyRow()
	f.Medicines = append(f.Medicines, row)
	return row
}

// RemoveRow deletes the row with the given id. The last remaining row is
// never removed.
func (f *Form) RemoveRow(id string) bool {
	if len(f.Medicines) <= 1 {
		return false
	}
	for i, med := range f.Medicines {
		if med.ID == id {
			f.Medicines = append(f.Medicines[:i:i], f.Medicines[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateRow applies patch to the row with the given id.
func (f *Form) UpdateRow(id string, patch MedicinePatch) (Medicine, bool) {
	for i := range f.Medicines {
		med := &f.Medicines[i]
		if med.ID != id {
			continue
		}
		if patch.Name != nil {
			med.Name = *patch.Name
		}
		if patch.Strength != nil {
			med.Strength = *patch.Strength
		}
		if patch.Frequency != nil {
			med.Frequency = *patch.Frequency
		}
		if patch.Days != nil {
			med.Days = *patch.Days
		}
		return *med, true
	}
	return Medicine{}, false
}

// SetMode switches between manual and voice entry.
func (f *Form) SetMode(mode Mode) {
	f.Mode = mode
}

// SetNotes replaces the free-text notes.
func (f *Form) SetNotes(notes string) {
	f.Notes = notes
}

// ApplyVoice merges a voice extraction into the form and returns the number
// of medicines added. Notes are replaced only when the extraction has some.
// The form always ends up back in manual entry mode.
func (f *Form) ApplyVoice(extraction Extraction) int {
	merged, added := Merger{NewID: f.newID}.Merge(f.Medicines, extraction.Medicines)
	f.Medicines = merged
	if extraction.Notes != "" {
		f.Notes = extraction.Notes
	}
	f.Mode = ModeManualEntry
	return added
}

// Valid reports whether every row is complete enough to be saved.
func (f *Form) Valid() bool {
	if len(f.Medicines) == 0 {
		return false
	}
	for _, med := range f.Medicines {
		if strings.TrimSpace(med.Name) == "" ||
			strings.TrimSpace(med.Strength) == "" ||
			med.Frequency == "" ||
			med.Days <= 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy sharing only the id source.
func (f *Form) Clone() *Form {
	medicines := make([]Medicine, len(f.Medicines))
	copy(medicines, f.Medicines)
	return &Form{
		Medicines: medicines,
		Notes:     f.Notes,
		Mode:      f.Mode,
		newID:     f.newID,
	}
}
