package extraction

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/giygas/prescriptions-api/metrics"
	"github.com/giygas/prescriptions-api/prescription"
)

const (
	sourceHeuristic = "heuristic"
	heuristicNotes  = "Take with food. Complete the full course as prescribed."
)

var (
	clauseSeparators = regexp.MustCompile(`[.,;]`)
	daysPattern      = regexp.MustCompile(`(\d+)\s*days?`)
)

// HeuristicExtractor recognizes a few common medicines by keyword. It makes
// no outbound calls and is meant for offline development.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

// Extract always returns Parsed for a non-empty transcript, possibly with
// no medicines.
func (h *HeuristicExtractor) Extract(_ context.Context, transcript string) (Outcome, error) {
	transcript = norm.NFC.String(strings.TrimSpace(transcript))
	if transcript == "" {
		metrics.ExtractionsTotal.WithLabelValues(sourceHeuristic, metrics.OutcomeEmpty).Inc()
		return nil, ErrEmptyTranscript
	}

	var medicines []prescription.ExtractedMedicine
	for _, clause := range clauseSeparators.Split(strings.ToLower(transcript), -1) {
		if strings.Contains(clause, "paracetamol") || strings.Contains(clause, "acetaminophen") {
			medicines = append(medicines, prescription.ExtractedMedicine{
				Name:      "Paracetamol",
				Strength:  "500mg",
				Frequency: clauseFrequency(clause, prescription.FrequencyOD),
				Days:      clauseDays(clause, 5),
			})
		}
		if strings.Contains(clause, "ibuprofen") {
			medicines = append(medicines, prescription.ExtractedMedicine{
				Name:      "Ibuprofen",
				Strength:  "400mg",
				Frequency: clauseFrequency(clause, prescription.FrequencyBD),
				Days:      clauseDays(clause, 3),
			})
		}
		if strings.Contains(clause, "amoxicillin") || strings.Contains(clause, "antibiotic") {
			days := 5
			if strings.Contains(clause, "week") {
				days = 7
			}
			medicines = append(medicines, prescription.ExtractedMedicine{
				Name:      "Amoxicillin",
				Strength:  "250mg",
				Frequency: prescription.FrequencyTDS,
				Days:      days,
			})
		}
	}

	var notes string
	if strings.Contains(transcript, "note") || strings.Contains(transcript, "instruction") {
		notes = heuristicNotes
	}

	metrics.ExtractionsTotal.WithLabelValues(sourceHeuristic, metrics.OutcomeParsed).Inc()
	extraction := prescription.Extraction{Medicines: medicines, Notes: notes}
	return Parsed{Extraction: extraction, Raw: marshalArrays(extraction)}, nil
}

func clauseFrequency(clause, fallback string) string {
	switch {
	case strings.Contains(clause, "twice"):
		return prescription.FrequencyBD
	case strings.Contains(clause, "three times"):
		return prescription.FrequencyTDS
	default:
		return fallback
	}
}

func clauseDays(clause string, fallback int) int {
	if strings.Contains(clause, "week") {
		return 7
	}
	if !strings.Contains(clause, "days") {
		return fallback
	}
	if m := daysPattern.FindStringSubmatch(clause); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return fallback
}

// marshalArrays renders an extraction in the same four-array shape the model returns.
func marshalArrays(e prescription.Extraction) []byte {
	payload := struct {
		Medicine         []string `json:"medicine"`
		MedicineStrength []string `json:"medicineStrength"`
		FrequencyForDay  []string `json:"frequencyForDay"`
		ForHowManyDays   []int    `json:"forHowManyDays"`
		Notes            string   `json:"notes,omitempty"`
	}{
		Medicine:         make([]string, 0, len(e.Medicines)),
		MedicineStrength: make([]string, 0, len(e.Medicines)),
		FrequencyForDay:  make([]string, 0, len(e.Medicines)),
		ForHowManyDays:   make([]int, 0, len(e.Medicines)),
		Notes:            e.Notes,
	}
	for _, m := range e.Medicines {
		payload.Medicine = append(payload.Medicine, m.Name)
		payload.MedicineStrength = append(payload.MedicineStrength, m.Strength)
		payload.FrequencyForDay = append(payload.FrequencyForDay, m.Frequency)
		payload.ForHowManyDays = append(payload.ForHowManyDays, m.Days)
	}
	raw, _ := json.Marshal(payload)
	return raw
}
