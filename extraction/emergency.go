package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/giygas/prescriptions-api/completion"
	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/metrics"
)

const sourceEmergencyCard = "emergency_card"

// ErrInvalidPatient is returned when the patient document is not valid JSON.
var ErrInvalidPatient = errors.New("patient data must be a JSON document")

type EmergencyContact struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
	Phone    string `json:"phone"`
}

// EmergencyCard is the summary printed on a patient's emergency card.
type EmergencyCard struct {
	Name              string           `json:"name"`
	Age               int              `json:"age"`
	Gender            string           `json:"gender"`
	BloodGroup        string           `json:"bloodGroup"`
	EmergencyContact  EmergencyContact `json:"emergencyContact"`
	Allergies         []string         `json:"allergies"`
	ChronicConditions []string         `json:"chronicConditions"`
}

type cardPayload struct {
	Name             *lenientString `json:"name"`
	Age              lenientInt     `json:"age"`
	Gender           lenientString  `json:"gender"`
	BloodGroup       lenientString  `json:"bloodGroup"`
	EmergencyContact struct {
		Name     lenientString `json:"name"`
		Relation lenientString `json:"relation"`
		Phone    lenientString `json:"phone"`
	} `json:"emergencyContact"`
	Allergies         []lenientString `json:"allergies"`
	ChronicConditions []lenientString `json:"chronicConditions"`
}

// EmergencyCardGenerator asks the model to condense a patient record into an EmergencyCard.
type EmergencyCardGenerator struct {
	completer Completer
	model     string
}

func NewEmergencyCardGenerator(completer Completer, model string) *EmergencyCardGenerator {
	return &EmergencyCardGenerator{completer: completer, model: model}
}

// Generate returns ParsedCard or Unparsed.
func (g *EmergencyCardGenerator) Generate(ctx context.Context, patient json.RawMessage) (Outcome, error) {
	if len(bytes.TrimSpace(patient)) == 0 || !json.Valid(patient) {
		return nil, ErrInvalidPatient
	}
	prompt, err := EmergencyCardPrompt(patient)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPatient, err)
	}

	resp, err := g.completer.Complete(ctx, completion.Request{
		Model:       g.model,
		Prompt:      prompt,
		Temperature: 0,
	})
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues(sourceEmergencyCard, metrics.OutcomeUpstream).Inc()
		if !errors.Is(err, completion.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %w", completion.ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	outcome := ParseEmergencyCard(resp.Content)
	if u, ok := outcome.(Unparsed); ok {
		metrics.ExtractionsTotal.WithLabelValues(sourceEmergencyCard, metrics.OutcomeMalformed).Inc()
		logging.Warn("Emergency card output could not be parsed", "error", u.Err)
		return outcome, nil
	}
	metrics.ExtractionsTotal.WithLabelValues(sourceEmergencyCard, metrics.OutcomeParsed).Inc()
	return outcome, nil
}

// ParseEmergencyCard decodes a card completion. An object without a name is Unparsed.
func ParseEmergencyCard(content string) Outcome {
	body := stripCodeFence(content)

	var payload cardPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Unparsed{Raw: content, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if payload.Name == nil {
		return Unparsed{Raw: content, Err: errors.New(`response has no "name" field`)}
	}

	card := EmergencyCard{
		Name:       string(*payload.Name),
		Age:        int(payload.Age),
		Gender:     string(payload.Gender),
		BloodGroup: string(payload.BloodGroup),
		EmergencyContact: EmergencyContact{
			Name:     string(payload.EmergencyContact.Name),
			Relation: string(payload.EmergencyContact.Relation),
			Phone:    string(payload.EmergencyContact.Phone),
		},
		Allergies:         toStrings(payload.Allergies),
		ChronicConditions: toStrings(payload.ChronicConditions),
	}

	raw, err := json.Marshal(card)
	if err != nil {
		return Unparsed{Raw: content, Err: err}
	}
	return ParsedCard{Card: card, Raw: raw}
}

func toStrings(in []lenientString) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, string(s))
		}
	}
	return out
}
