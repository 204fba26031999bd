// Package catalogue loads the rule and question catalogues. Both are data: new
// rules and questions are added to the YAML files without touching the evaluator.
package catalogue

import (
	"embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gravilog-risk-core/internal/domain"
)

//go:embed data/*.yaml
var embedded embed.FS

// QuestionKind tells the answer normalizer how to read free text.
type QuestionKind string

const (
	KindSeverity QuestionKind = "severity"
	KindReading  QuestionKind = "reading"
)

// Condition is one predicate over the active answer for a symptom.
type Condition struct {
	Symptom            string          `yaml:"symptom" json:"symptom"`
	MinSeverity        domain.Severity `yaml:"min_severity" json:"min_severity"`
	DurationAboveHours *float64        `yaml:"duration_above_hours,omitempty" json:"duration_above_hours,omitempty"`
}

// Rule maps a conjunction of conditions to a declared risk level.
type Rule struct {
	ID                 string           `yaml:"id" json:"id"`
	Level              domain.RiskLevel `yaml:"level" json:"level"`
	DescriptionKey     string           `yaml:"description_key,omitempty" json:"description_key"`
	When               []Condition      `yaml:"when" json:"when"`
	MinGestationalWeek *int             `yaml:"min_gestational_week,omitempty" json:"min_gestational_week,omitempty"`
	MaxGestationalWeek *int             `yaml:"max_gestational_week,omitempty" json:"max_gestational_week,omitempty"`
}

// HasWeekBound reports whether the rule depends on the gestational week.
func (r Rule) HasWeekBound() bool {
	return r.MinGestationalWeek != nil || r.MaxGestationalWeek != nil
}

// WeekAllows reports whether a known week lies within the rule's bounds.
// An unknown week never satisfies a bounded rule.
func (r Rule) WeekAllows(week *int) bool {
	if !r.HasWeekBound() {
		return true
	}
	if week == nil {
		return false
	}
	if r.MinGestationalWeek != nil && *week < *r.MinGestationalWeek {
		return false
	}
	if r.MaxGestationalWeek != nil && *week > *r.MaxGestationalWeek {
		return false
	}
	return true
}

// References reports whether any condition of the rule is about symptomID.
func (r Rule) References(symptomID string) bool {
	for _, c := range r.When {
		if c.Symptom == symptomID {
			return true
		}
	}
	return false
}

// Question is one askable item. Its text is resolved by the locale provider.
type Question struct {
	ID      string       `yaml:"id" json:"id"`
	Symptom string       `yaml:"symptom" json:"symptom"`
	Kind    QuestionKind `yaml:"kind" json:"kind"`
	Opening bool         `yaml:"opening" json:"opening"`
}

// TextKey is the locale key of the question text.
func (q Question) TextKey() string {
	return "question." + q.ID
}

// Catalogue is the read-only set of rules and questions shared by all sessions.
type Catalogue struct {
	Rules     []Rule
	Questions []Question

	questionsByID      map[string]int
	questionsBySymptom map[string]int
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

type questionsFile struct {
	Questions []Question `yaml:"questions"`
}

// Default loads the embedded catalogues.
func Default() (*Catalogue, error) {
	return LoadFiles("", "")
}

// LoadFiles loads catalogues from disk. An empty path selects the embedded file.
func LoadFiles(rulesPath, questionsPath string) (*Catalogue, error) {
	rules, err := readSource(rulesPath, "data/rules.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading rule catalogue: %w", err)
	}
	questions, err := readSource(questionsPath, "data/questions.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading question catalogue: %w", err)
	}
	return Load(rules, questions)
}

func readSource(path, embeddedName string) ([]byte, error) {
	if path == "" {
		return embedded.ReadFile(embeddedName)
	}
	return os.ReadFile(path)
}

// Load parses and validates YAML catalogue documents.
func Load(rulesYAML, questionsYAML []byte) (*Catalogue, error) {
	var rf rulesFile
	if err := yaml.Unmarshal(rulesYAML, &rf); err != nil {
		return nil, fmt.Errorf("parsing rule catalogue: %w", err)
	}
	var qf questionsFile
	if err := yaml.Unmarshal(questionsYAML, &qf); err != nil {
		return nil, fmt.Errorf("parsing question catalogue: %w", err)
	}
	return New(rf.Rules, qf.Questions)
}

// New builds a catalogue from in-memory definitions.
func New(rules []Rule, questions []Question) (*Catalogue, error) {
	c := &Catalogue{
		Rules:              make([]Rule, len(rules)),
		Questions:          append([]Question{}, questions...),
		questionsByID:      make(map[string]int, len(questions)),
		questionsBySymptom: make(map[string]int, len(questions)),
	}
	copy(c.Rules, rules)

	if len(c.Questions) == 0 {
		return nil, errors.New("question catalogue is empty")
	}

	for i, q := range c.Questions {
		if q.ID == "" || q.Symptom == "" {
			return nil, fmt.Errorf("question %d: id and symptom are required", i+1)
		}
		if q.Kind == "" {
			c.Questions[i].Kind = KindSeverity
		} else if q.Kind != KindSeverity && q.Kind != KindReading {
			return nil, fmt.Errorf("question %s: unknown kind %q", q.ID, q.Kind)
		}
		if _, dup := c.questionsByID[q.ID]; dup {
			return nil, fmt.Errorf("question %s: duplicate id", q.ID)
		}
		if _, dup := c.questionsBySymptom[q.Symptom]; dup {
			return nil, fmt.Errorf("question %s: symptom %s already has a question", q.ID, q.Symptom)
		}
		c.questionsByID[q.ID] = i
		c.questionsBySymptom[q.Symptom] = i
	}

	seen := make(map[string]bool, len(c.Rules))
	for i := range c.Rules {
		r := &c.Rules[i]
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i+1)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if !r.Level.IsValid() {
			return nil, fmt.Errorf("rule %s: %w", r.ID, domain.ErrInvalidRiskLevel)
		}
		if len(r.When) == 0 {
			return nil, fmt.Errorf("rule %s: at least one condition is required", r.ID)
		}
		if r.DescriptionKey == "" {
			r.DescriptionKey = "rule." + r.ID
		}
		for _, cond := range r.When {
			if !cond.MinSeverity.IsKnown() {
				return nil, fmt.Errorf("rule %s: condition on %s: %w", r.ID, cond.Symptom, domain.ErrInvalidSeverity)
			}
			if _, ok := c.questionsBySymptom[cond.Symptom]; !ok {
				return nil, fmt.Errorf("rule %s: no question asks about symptom %s", r.ID, cond.Symptom)
			}
			if cond.DurationAboveHours != nil && *cond.DurationAboveHours < 0 {
				return nil, fmt.Errorf("rule %s: negative duration bound", r.ID)
			}
		}
	}

	return c, nil
}

// Question looks a question up by id.
func (c *Catalogue) Question(id string) (Question, bool) {
	i, ok := c.questionsByID[id]
	if !ok {
		return Question{}, false
	}
	return c.Questions[i], true
}

// QuestionForSymptom returns the question that asks about symptomID.
func (c *Catalogue) QuestionForSymptom(symptomID string) (Question, bool) {
	i, ok := c.questionsBySymptom[symptomID]
	if !ok {
		return Question{}, false
	}
	return c.Questions[i], true
}

// Rule looks a rule up by id.
func (c *Catalogue) Rule(id string) (Rule, bool) {
	for _, r := range c.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// OpeningQuestions returns the fixed opening set in catalogue order.
func (c *Catalogue) OpeningQuestions() []Question {
	var out []Question
	for _, q := range c.Questions {
		if q.Opening {
			out = append(out, q)
		}
	}
	return out
}
