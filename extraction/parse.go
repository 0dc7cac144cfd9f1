package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/prescription"
)

var errMissingMedicineKey = errors.New(`response has no "medicine" array`)

// lenientString accepts strings and numbers; anything else decodes to "".
type lenientString string

func (s *lenientString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*s = ""
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = lenientString(v)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*s = lenientString(data)
	default:
		*s = ""
	}
	return nil
}

// lenientInt accepts numbers and numeric strings. Fractions are truncated,
// out of range values are clamped and everything else decodes to 0.
type lenientInt int

func (n *lenientInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*n = 0
	if len(data) == 0 {
		return nil
	}

	text := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return nil
		}
		text = strings.TrimSpace(text)
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) {
		return nil
	}
	switch {
	case f > math.MaxInt32:
		*n = math.MaxInt32
	case f < math.MinInt32:
		*n = math.MinInt32
	default:
		*n = lenientInt(int(f))
	}
	return nil
}

type prescriptionPayload struct {
	Medicine         *[]lenientString `json:"medicine"`
	MedicineStrength []lenientString  `json:"medicineStrength"`
	FrequencyForDay  []lenientString  `json:"frequencyForDay"`
	ForHowManyDays   []lenientInt     `json:"forHowManyDays"`
	Notes            lenientString    `json:"notes"`
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParsePrescription decodes the four index-aligned arrays of a prescription
// completion. Shorter secondary arrays are padded with defaults.
func ParsePrescription(content string) Outcome {
	outcome, _ := parsePrescription(content)
	return outcome
}

func parsePrescription(content string) (Outcome, bool) {
	body := stripCodeFence(content)

	var payload prescriptionPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Unparsed{Raw: content, Err: fmt.Errorf("invalid JSON: %w", err)}, false
	}
	if payload.Medicine == nil {
		return Unparsed{Raw: content, Err: errMissingMedicineKey}, false
	}

	names := *payload.Medicine
	mismatch := len(payload.MedicineStrength) != len(names) ||
		len(payload.FrequencyForDay) != len(names) ||
		len(payload.ForHowManyDays) != len(names)
	if mismatch {
		logging.Warn("Extraction arrays have different lengths",
			"medicine", len(names),
			"medicineStrength", len(payload.MedicineStrength),
			"frequencyForDay", len(payload.FrequencyForDay),
			"forHowManyDays", len(payload.ForHowManyDays))
	}

	medicines := make([]prescription.ExtractedMedicine, 0, len(names))
	for i, name := range names {
		m := prescription.ExtractedMedicine{Name: string(name)}
		if i < len(payload.MedicineStrength) {
			m.Strength = string(payload.MedicineStrength[i])
		}
		if i < len(payload.FrequencyForDay) {
			m.Frequency = string(payload.FrequencyForDay[i])
		}
		if i < len(payload.ForHowManyDays) {
			m.Days = int(payload.ForHowManyDays[i])
		}
		medicines = append(medicines, m)
	}

	var raw bytes.Buffer
	if err := json.Compact(&raw, []byte(body)); err != nil {
		raw.Reset()
		raw.WriteString(body)
	}

	return Parsed{
		Extraction: prescription.Extraction{
			Medicines: medicines,
			Notes:     strings.TrimSpace(string(payload.Notes)),
		},
		Raw: raw.Bytes(),
	}, mismatch
}
