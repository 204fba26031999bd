package external

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gravilog-risk-core/internal/domain"
)

const maxRationaleLength = 1000

const systemPrompt = `You are a clinical triage assistant reviewing pregnancy symptoms reported through a questionnaire.
Classify the patient's current risk level as "low", "medium" or "high".
Reply with a single JSON object and nothing else:
{"risk_level": "low|medium|high", "rationale": "short explanation for the patient", "confidence": 0.0-1.0}
Do not give a diagnosis. When in doubt choose the higher level.`

var errUnparseableReply = errors.New("reasoning reply has no JSON object")

type promptEntry struct {
	Symptom       string   `json:"symptom"`
	Severity      string   `json:"severity"`
	DurationHours *float64 `json:"duration_hours,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

type promptInput struct {
	GestationalWeek *int             `json:"gestational_week,omitempty"`
	Symptoms        []promptEntry    `json:"symptoms"`
	Context         []domain.Passage `json:"context,omitempty"`
}

var rationaleLanguage = map[string]string{
	"en": "English",
	"ar": "Arabic",
}

// buildUserPrompt serializes the active answers of state and the retrieved passages.
func buildUserPrompt(state *domain.SymptomState, passages []domain.Passage) (string, error) {
	input := promptInput{
		GestationalWeek: state.GestationalWeek,
		Symptoms:        []promptEntry{},
		Context:         passages,
	}
	for _, e := range state.ActiveEntries() {
		input.Symptoms = append(input.Symptoms, promptEntry{
			Symptom:       e.SymptomID,
			Severity:      string(e.Severity),
			DurationHours: e.DurationHours,
			Notes:         e.FreeText,
		})
	}

	data, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding prompt input: %w", err)
	}

	lang, ok := rationaleLanguage[state.Locale]
	if !ok {
		lang = "English"
	}

	var b strings.Builder
	b.WriteString("Patient responses:\n")
	b.Write(data)
	b.WriteString("\n\nWrite the rationale in ")
	b.WriteString(lang)
	b.WriteString(".")
	return b.String(), nil
}

// rawReply accepts both the current keys and the level/explanation keys of the
// older reply format.
type rawReply struct {
	RiskLevel   string `json:"risk_level"`
	Level       string `json:"level"`
	Rationale   string `json:"rationale"`
	Explanation string `json:"explanation"`
	Confidence  any    `json:"confidence"`
}

// parseVerdict extracts the first JSON object from a reply and validates it.
// A reply without a decodable object is an error; a decodable object with bad
// fields becomes a degraded verdict.
func parseVerdict(content string) (domain.AIVerdict, error) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return domain.AIVerdict{}, errUnparseableReply
	}

	var raw rawReply
	if err := json.NewDecoder(strings.NewReader(content[start:])).Decode(&raw); err != nil {
		return domain.AIVerdict{}, fmt.Errorf("%w: %v", errUnparseableReply, err)
	}

	level := raw.RiskLevel
	if level == "" {
		level = raw.Level
	}
	rationale := raw.Rationale
	if rationale == "" {
		rationale = raw.Explanation
	}
	rationale = strings.TrimSpace(rationale)
	if r := []rune(rationale); len(r) > maxRationaleLength {
		rationale = string(r[:maxRationaleLength])
	}

	verdict := domain.AIVerdict{Rationale: rationale, Status: domain.VerdictOK}

	if parsed, err := domain.ParseRiskLevel(level); err == nil {
		verdict.RiskLevel = parsed
	} else {
		verdict.Status = domain.VerdictDegraded
	}

	if c, ok := parseConfidence(raw.Confidence); ok {
		verdict.Confidence = &c
	} else {
		verdict.Status = domain.VerdictDegraded
	}

	return verdict, nil
}

// parseConfidence accepts a finite number or numeric string in [0, 1].
func parseConfidence(v any) (float64, bool) {
	var c float64
	switch t := v.(type) {
	case float64:
		c = t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		c = f
	default:
		return 0, false
	}
	if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 || c > 1 {
		return 0, false
	}
	return c, true
}
