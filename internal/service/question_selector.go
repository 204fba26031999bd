package service

import (
	"errors"
	"fmt"

	"github.com/gravilog-risk-core/internal/catalogue"
	"github.com/gravilog-risk-core/internal/domain"
)

// SelectorState is the questioning state of one session.
type SelectorState string

const (
	StateAsking         SelectorState = "asking"
	StateAwaitingAnswer SelectorState = "awaiting_answer"
	StateTerminating    SelectorState = "terminating"
	StateDone           SelectorState = "done"
)

// TerminationReason records why questioning stopped.
type TerminationReason string

const (
	ReasonNoInformationGain  TerminationReason = "no_information_gain"
	ReasonMaxQuestions       TerminationReason = "max_questions"
	ReasonHighRisk           TerminationReason = "high_risk"
	ReasonCatalogueExhausted TerminationReason = "catalogue_exhausted"
)

// ErrInvalidTransition is returned when an operation does not fit the current state.
var ErrInvalidTransition = errors.New("invalid selector transition")

// SelectorPolicy holds the questioning bounds.
type SelectorPolicy struct {
	MinQuestions int
	MaxQuestions int
}

// Validate checks the policy against the catalogue it will run on.
func (p SelectorPolicy) Validate(cat *catalogue.Catalogue) error {
	if p.MinQuestions < 1 {
		return fmt.Errorf("min questions must be at least 1, got %d", p.MinQuestions)
	}
	if p.MaxQuestions < p.MinQuestions {
		return fmt.Errorf("max questions (%d) must not be below min questions (%d)", p.MaxQuestions, p.MinQuestions)
	}
	if len(cat.Questions) < p.MinQuestions {
		return fmt.Errorf("catalogue has %d questions, fewer than the minimum of %d", len(cat.Questions), p.MinQuestions)
	}
	return nil
}

// Decision is the outcome of one Next call.
type Decision struct {
	QuestionID string
	Terminate  bool
	Reason     TerminationReason
}

// QuestionSelector decides, turn by turn, which question to ask and when to stop.
// It is owned by a single session and is not safe for concurrent use.
type QuestionSelector struct {
	engine *RuleEngine
	policy SelectorPolicy

	state         SelectorState
	asked         []string
	askedSymptoms map[string]bool
	pending       catalogue.Question
	answered      int
	reason        TerminationReason
	verdict       domain.RuleVerdict
}

// NewQuestionSelector creates a selector in the Asking state.
func NewQuestionSelector(engine *RuleEngine, policy SelectorPolicy) *QuestionSelector {
	return &QuestionSelector{
		engine:        engine,
		policy:        policy,
		state:         StateAsking,
		askedSymptoms: make(map[string]bool),
		verdict:       domain.RuleVerdict{RiskLevel: domain.RiskLow, TriggeredRules: []string{}, Confidence: domain.DeterministicConfidence},
	}
}

// State returns the current state.
func (s *QuestionSelector) State() SelectorState { return s.state }

// Reason returns why questioning stopped, once it has.
func (s *QuestionSelector) Reason() TerminationReason { return s.reason }

// AnsweredCount returns how many emitted questions have been answered.
func (s *QuestionSelector) AnsweredCount() int { return s.answered }

// Verdict returns the rule verdict from the latest evaluation.
func (s *QuestionSelector) Verdict() domain.RuleVerdict { return s.verdict }

// Pending returns the question awaiting an answer.
func (s *QuestionSelector) Pending() (catalogue.Question, bool) {
	if s.state != StateAwaitingAnswer {
		return catalogue.Question{}, false
	}
	return s.pending, true
}

// WasAsked reports whether questionID has been emitted in this session.
func (s *QuestionSelector) WasAsked(questionID string) bool {
	for _, id := range s.asked {
		if id == questionID {
			return true
		}
	}
	return false
}

// Next chooses the next question or decides to terminate. Valid only in Asking.
func (s *QuestionSelector) Next(state *domain.SymptomState) (Decision, error) {
	if s.state != StateAsking {
		return Decision{}, fmt.Errorf("%w: next called in state %s", ErrInvalidTransition, s.state)
	}

	s.verdict = s.engine.Evaluate(state)

	if s.answered >= s.policy.MaxQuestions {
		return s.terminate(ReasonMaxQuestions), nil
	}
	if s.verdict.RiskLevel == domain.RiskHigh && s.answered >= s.policy.MinQuestions {
		return s.terminate(ReasonHighRisk), nil
	}

	candidate, gain, ok := s.pick(state)
	if !ok {
		return s.terminate(ReasonCatalogueExhausted), nil
	}
	if !gain && s.answered >= s.policy.MinQuestions {
		return s.terminate(ReasonNoInformationGain), nil
	}

	s.pending = candidate
	s.asked = append(s.asked, candidate.ID)
	s.askedSymptoms[candidate.Symptom] = true
	s.state = StateAwaitingAnswer
	return Decision{QuestionID: candidate.ID}, nil
}

// Answer records the entry for the pending question and returns to Asking.
// A rejected entry leaves both the selector and the state unchanged.
func (s *QuestionSelector) Answer(state *domain.SymptomState, entry domain.SymptomEntry) error {
	if s.state != StateAwaitingAnswer {
		return fmt.Errorf("%w: answer received in state %s", ErrInvalidTransition, s.state)
	}
	if entry.QuestionID != s.pending.ID {
		return domain.NewValidationError("question_id",
			fmt.Sprintf("expected an answer to %s", s.pending.ID), entry.QuestionID)
	}
	entry.SymptomID = s.pending.Symptom
	if err := state.Append(entry); err != nil {
		return err
	}
	s.answered++
	s.state = StateAsking
	s.verdict = s.engine.Evaluate(state)
	return nil
}

// Correct replaces the answer to an earlier question. The pending question is unchanged.
func (s *QuestionSelector) Correct(state *domain.SymptomState, entry domain.SymptomEntry) error {
	if s.state != StateAwaitingAnswer && s.state != StateAsking {
		return fmt.Errorf("%w: correction received in state %s", ErrInvalidTransition, s.state)
	}
	q, ok := s.engine.Catalogue().Question(entry.QuestionID)
	if !ok || !s.WasAsked(q.ID) || (s.state == StateAwaitingAnswer && q.ID == s.pending.ID) {
		return domain.NewValidationError("question_id", "question was not answered in this session", entry.QuestionID)
	}
	entry.SymptomID = q.Symptom
	if err := state.Append(entry); err != nil {
		return err
	}
	s.verdict = s.engine.Evaluate(state)
	return nil
}

// Complete marks the terminal evaluation as finished.
func (s *QuestionSelector) Complete() error {
	if s.state != StateTerminating {
		return fmt.Errorf("%w: complete called in state %s", ErrInvalidTransition, s.state)
	}
	s.state = StateDone
	return nil
}

func (s *QuestionSelector) terminate(reason TerminationReason) Decision {
	s.state = StateTerminating
	s.reason = reason
	return Decision{Terminate: true, Reason: reason}
}

// pick returns the next candidate and whether any unasked question could still
// change the rule outcome. Opening questions come first in catalogue order; after
// them the highest information value wins, ties broken by catalogue order. With no
// gain left the first unasked question is offered so the minimum can be met.
func (s *QuestionSelector) pick(state *domain.SymptomState) (catalogue.Question, bool, bool) {
	var (
		opening   *catalogue.Question
		best      *catalogue.Question
		fallback  *catalogue.Question
		bestValue int
	)

	questions := s.engine.Catalogue().Questions
	for i := range questions {
		q := &questions[i]
		if s.askedSymptoms[q.Symptom] {
			continue
		}
		if fallback == nil {
			fallback = q
		}
		if q.Opening && opening == nil {
			opening = q
		}
		if v := s.informationValue(*q, state); v > bestValue {
			best, bestValue = q, v
		}
	}

	gain := bestValue > 0
	switch {
	case opening != nil:
		return *opening, gain, true
	case best != nil:
		return *best, gain, true
	case fallback != nil:
		return *fallback, gain, true
	default:
		return catalogue.Question{}, false, false
	}
}

// informationValue is the rank of the most severe untriggered rule, above the
// current verdict, that an answer to q could still complete. Zero means the
// answer cannot change the rule outcome.
func (s *QuestionSelector) informationValue(q catalogue.Question, state *domain.SymptomState) int {
	value := 0
	for _, rule := range s.engine.Catalogue().Rules {
		if rule.Level.Rank() <= s.verdict.RiskLevel.Rank() || rule.Level.Rank() <= value {
			continue
		}
		if !rule.References(q.Symptom) || s.verdict.Triggered(rule.ID) {
			continue
		}
		if satisfiable(rule, state, q.Symptom) {
			value = rule.Level.Rank()
		}
	}
	return value
}

// satisfiable reports whether rule could still trigger once symptomID is answered.
func satisfiable(rule catalogue.Rule, state *domain.SymptomState, symptomID string) bool {
	if !rule.WeekAllows(state.GestationalWeek) {
		return false
	}
	for _, cond := range rule.When {
		if cond.Symptom == symptomID {
			continue
		}
		entry, answered := state.Active(cond.Symptom)
		if answered && !conditionHolds(cond, entry) {
			return false
		}
	}
	return true
}
