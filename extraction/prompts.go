package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const prescriptionPromptTemplate = `Extract the medicines, strengths, frequency per day, and duration from this text: "%s". Return JSON only in this exact format without explanation:
{
  "medicine": [],
  "medicineStrength": [],
  "frequencyForDay": [],
  "forHowManyDays": []
}
Use these frequency terms where appropriate: "OD", "BD", "TDS", "Morning Only", "Evening Only", "Morning & Evening".`

const emergencyCardPromptTemplate = `From the following patient data, generate an Emergency Medical Card.
Return strictly in this JSON format only (no explanations, no extra fields):

{
  "name": "",
  "age": 0,
  "gender": "",
  "bloodGroup": "",
  "emergencyContact": {
    "name": "",
    "relation": "",
    "phone": ""
  },
  "allergies": [],
  "chronicConditions": []
}

Patient Data:
%s
`

// PrescriptionPrompt embeds transcript verbatim inside the extraction directive.
func PrescriptionPrompt(transcript string) string {
	return fmt.Sprintf(prescriptionPromptTemplate, transcript)
}

// EmergencyCardPrompt embeds the patient document indented by two spaces.
func EmergencyCardPrompt(patient json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, patient, "", "  "); err != nil {
		return "", fmt.Errorf("invalid patient data: %w", err)
	}
	return fmt.Sprintf(emergencyCardPromptTemplate, buf.String()), nil
}
