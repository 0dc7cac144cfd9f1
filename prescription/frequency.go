package prescription

// Frequency short codes stored on a Medicine once normalized.
const (
	FrequencyOD             = "OD"
	FrequencyBD             = "BD"
	FrequencyTDS            = "TDS"
	FrequencyMorning        = "Morning"
	FrequencyEvening        = "Evening"
	FrequencyMorningEvening = "Morning-Evening"
)

// FrequencyLabels are the phrases an extractor is allowed to return, in the
// order they are offered to the model.
var FrequencyLabels = []string{
	"OD",
	"BD",
	"TDS",
	"Morning Only",
	"Evening Only",
	"Morning & Evening",
}

var frequencyCodes = map[string]string{
	"OD":                FrequencyOD,
	"BD":                FrequencyBD,
	"TDS":               FrequencyTDS,
	"Morning Only":      FrequencyMorning,
	"Evening Only":      FrequencyEvening,
	"Morning & Evening": FrequencyMorningEvening,
}

// NormalizeFrequency maps a frequency label to its short code. Matching is
// exact; anything unknown is returned unchanged so it can be corrected by hand.
func NormalizeFrequency(frequency string) string {
	if code, ok := frequencyCodes[frequency]; ok {
		return code
	}
	return frequency
}

// IsFrequencyCode reports whether s is one of the short codes.
func IsFrequencyCode(s string) bool {
	switch s {
	case FrequencyOD, FrequencyBD, FrequencyTDS, FrequencyMorning, FrequencyEvening, FrequencyMorningEvening:
		return true
	}
	return false
}
