package prescription

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs(prefix string) IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestNormalizeFrequency(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"OD", FrequencyOD},
		{"BD", FrequencyBD},
		{"TDS", FrequencyTDS},
		{"Morning Only", FrequencyMorning},
		{"Evening Only", FrequencyEvening},
		{"Morning & Evening", FrequencyMorningEvening},
		{"Morning", FrequencyMorning},
		{"Morning-Evening", FrequencyMorningEvening},
		{"twice a day", "twice a day"},
		{"morning only", "morning only"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeFrequency(tt.in))
		})
	}
}

func TestNormalizeFrequencyIsIdempotent(t *testing.T) {
	inputs := append([]string{"", "weekly", "Morning-Evening", " BD "}, FrequencyLabels...)
	for _, in := range inputs {
		once := NormalizeFrequency(in)
		assert.Equal(t, once, NormalizeFrequency(once), "input %q", in)
	}
}

func TestEveryLabelNormalizesToACode(t *testing.T) {
	for _, label := range FrequencyLabels {
		assert.True(t, IsFrequencyCode(NormalizeFrequency(label)), label)
	}
}

func TestMergeDropsNamesAlreadyInList(t *testing.T) {
	current := []Medicine{{ID: "1", Name: "Paracetamol", Strength: "500mg", Frequency: "BD", Days: 5}}
	batch := []ExtractedMedicine{{Name: "paracetamol"}, {Name: "Ibuprofen", Strength: "400mg", Frequency: "TDS", Days: 3}}

	merged, added := Merger{NewID: sequentialIDs("m")}.Merge(current, batch)

	require.Len(t, merged, 2)
	assert.Equal(t, 1, added)
	assert.Equal(t, current[0], merged[0])
	assert.Equal(t, Medicine{ID: "m-1", Name: "Ibuprofen", Strength: "400mg", Frequency: "TDS", Days: 3}, merged[1])
}

func TestMergeComparesTrimmedCaseFoldedNames(t *testing.T) {
	current := []Medicine{{ID: "1", Name: "  Amoxicillin "}}
	batch := []ExtractedMedicine{{Name: "AMOXICILLIN"}, {Name: "amoxicillin  "}}

	merged, added := Merger{NewID: sequentialIDs("m")}.Merge(current, batch)

	assert.Equal(t, 0, added)
	assert.Equal(t, current, merged)
}

func TestMergeDoesNotDeduplicateWithinBatch(t *testing.T) {
	current := []Medicine{{ID: "1", Name: "Cetirizine"}}
	batch := []ExtractedMedicine{{Name: "Ibuprofen"}, {Name: "ibuprofen"}}

	merged, added := Merger{NewID: sequentialIDs("m")}.Merge(current, batch)

	assert.Equal(t, 2, added)
	assert.Len(t, merged, 3)
}

func TestMergeReplacesPlaceholder(t *testing.T) {
	current := []Medicine{{ID: "1", Name: ""}}
	batch := []ExtractedMedicine{{Name: "Amoxicillin", Strength: "250mg", Frequency: "TDS", Days: 5}}

	merged, added := Merger{NewID: sequentialIDs("m")}.Merge(current, batch)

	assert.Equal(t, 1, added)
	assert.Equal(t, []Medicine{{ID: "m-1", Name: "Amoxicillin", Strength: "250mg", Frequency: "TDS", Days: 5}}, merged)
}

func TestMergeKeepsPlaceholderWhenNothingSurvives(t *testing.T) {
	current := []Medicine{{ID: "1", Name: "  "}}

	for name, batch := range map[string][]ExtractedMedicine{
		"empty batch":       nil,
		"empty names":       {{Name: ""}, {Name: " "}},
		"zero-length batch": {},
	} {
		t.Run(name, func(t *testing.T) {
			merged, added := Merger{NewID: sequentialIDs("m")}.Merge(current, batch)
			assert.Equal(t, 0, added)
			assert.Equal(t, current, merged)
		})
	}
}

func TestMergeAppendsWhenListHasContent(t *testing.T) {
	current := []Medicine{
		{ID: "1", Name: "Paracetamol"},
		{ID: "2", Name: ""},
	}
	batch := []ExtractedMedicine{{Name: "Ibuprofen"}}

	merged, _ := Merger{NewID: sequentialIDs("m")}.Merge(current, batch)

	require.Len(t, merged, 3)
	assert.Equal(t, "Ibuprofen", merged[2].Name)
}

func TestMergeNormalizesFrequencyAndDays(t *testing.T) {
	batch := []ExtractedMedicine{
		{Name: "A", Frequency: "Morning & Evening", Days: -4},
		{Name: "B", Frequency: "every other day", Days: 0},
		{Name: "C", Frequency: "Evening Only", Days: 10},
	}

	merged, _ := Merger{NewID: sequentialIDs("m")}.Merge(nil, batch)

	require.Len(t, merged, 3)
	assert.Equal(t, FrequencyMorningEvening, merged[0].Frequency)
	assert.Equal(t, 0, merged[0].Days)
	assert.Equal(t, "every other day", merged[1].Frequency)
	assert.Equal(t, 0, merged[1].Days)
	assert.Equal(t, FrequencyEvening, merged[2].Frequency)
	assert.Equal(t, 10, merged[2].Days)
}

func TestMergeDoesNotModifyCurrent(t *testing.T) {
	current := make([]Medicine, 1, 8)
	current[0] = Medicine{ID: "1", Name: "Paracetamol"}

	merged := Merge(current, []ExtractedMedicine{{Name: "Ibuprofen"}})

	require.Len(t, merged, 2)
	assert.Equal(t, []Medicine{{ID: "1", Name: "Paracetamol"}}, current)
	assert.Equal(t, Medicine{}, current[:2][1], "spare capacity must stay untouched")
}

func TestMergeAssignsUniqueIDs(t *testing.T) {
	batch := []ExtractedMedicine{{Name: "A"}, {Name: "B"}, {Name: "C"}}
	merged := Merge(nil, batch)

	seen := map[string]bool{}
	for _, med := range merged {
		require.NotEmpty(t, med.ID)
		assert.False(t, seen[med.ID], "duplicate id %s", med.ID)
		seen[med.ID] = true
	}
}

func TestFormVoiceRoundTrip(t *testing.T) {
	form := NewFormWithIDs(sequentialIDs("row"))
	require.Len(t, form.Medicines, 1)
	assert.True(t, form.Medicines[0].IsPlaceholder())
	assert.False(t, form.Valid())

	form.SetMode(ModeVoiceInput)
	added := form.ApplyVoice(Extraction{
		Medicines: []ExtractedMedicine{{Name: "Paracetamol", Strength: "500mg", Frequency: "BD", Days: 5}},
		Notes:     "Take with food",
	})

	assert.Equal(t, 1, added)
	assert.Equal(t, ModeManualEntry, form.Mode)
	assert.Equal(t, "Take with food", form.Notes)
	assert.Equal(t, []Medicine{{ID: "row-2", Name: "Paracetamol", Strength: "500mg", Frequency: "BD", Days: 5}}, form.Medicines)
	assert.True(t, form.Valid())
}

func TestFormApplyVoiceReturnsToManualEvenWhenNothingAdded(t *testing.T) {
	form := NewForm()
	form.SetNotes("keep me")
	form.SetMode(ModeVoiceInput)

	added := form.ApplyVoice(Extraction{})

	assert.Equal(t, 0, added)
	assert.Equal(t, ModeManualEntry, form.Mode)
	assert.Equal(t, "keep me", form.Notes)
	assert.Len(t, form.Medicines, 1)
}

func TestFormRows(t *testing.T) {
	form := NewFormWithIDs(sequentialIDs("row"))

	assert.False(t, form.RemoveRow("row-1"), "the last row cannot be removed")

	second := form.AddRow()
	assert.Equal(t, "row-2", second.ID)

	name, days := "Cetirizine", 7
	updated, ok := form.UpdateRow("row-2", MedicinePatch{Name: &name, Days: &days})
	require.True(t, ok)
	assert.Equal(t, Medicine{ID: "row-2", Name: "Cetirizine", Days: 7}, updated)

	_, ok = form.UpdateRow("missing", MedicinePatch{Name: &name})
	assert.False(t, ok)

	assert.True(t, form.RemoveRow("row-1"))
	assert.False(t, form.RemoveRow("row-1"))
	require.Len(t, form.Medicines, 1)
	assert.Equal(t, "row-2", form.Medicines[0].ID)

	third := form.AddRow()
	assert.Equal(t, "row-3", third.ID, "ids are never reused")
}

func TestFormValid(t *testing.T) {
	complete := Medicine{ID: "1", Name: "Paracetamol", Strength: "500mg", Frequency: "BD", Days: 5}

	tests := []struct {
		name string
		mut  func(*Medicine)
		want bool
	}{
		{"complete", func(*Medicine) {}, true},
		{"blank name", func(m *Medicine) { m.Name = "  " }, false},
		{"blank strength", func(m *Medicine) { m.Strength = "" }, false},
		{"no frequency", func(m *Medicine) { m.Frequency = "" }, false},
		{"zero days", func(m *Medicine) { m.Days = 0 }, false},
		{"negative days", func(m *Medicine) { m.Days = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			med := complete
			tt.mut(&med)
			form := &Form{Medicines: []Medicine{complete, med}}
			assert.Equal(t, tt.want, form.Valid())
		})
	}

	assert.False(t, (&Form{}).Valid())
}

func TestFormResetAndClone(t *testing.T) {
	form := NewForm()
	form.AddRow()
	form.SetNotes("n")
	form.SetMode(ModeVoiceInput)

	clone := form.Clone()
	form.Reset()

	assert.Len(t, form.Medicines, 1)
	assert.Empty(t, form.Notes)
	assert.Equal(t, ModeManualEntry, form.Mode)

	assert.Len(t, clone.Medicines, 2)
	assert.Equal(t, "n", clone.Notes)
	assert.Equal(t, ModeVoiceInput, clone.Mode)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode(" Voice ")
	require.NoError(t, err)
	assert.Equal(t, ModeVoiceInput, mode)

	mode, err = ParseMode("manual")
	require.NoError(t, err)
	assert.Equal(t, ModeManualEntry, mode)

	_, err = ParseMode("dictation")
	assert.Error(t, err)
}
