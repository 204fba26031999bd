package service

import (
	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/catalogue"
	"github.com/gravilog-risk-core/internal/domain"
)

// RuleEngine evaluates the clinical rule catalogue against a symptom state.
// Evaluation is pure: it reads the state and the shared catalogue only.
type RuleEngine struct {
	logger    *logrus.Logger
	catalogue *catalogue.Catalogue
}

// NewRuleEngine creates a rule engine over a loaded catalogue.
func NewRuleEngine(cat *catalogue.Catalogue, logger *logrus.Logger) *RuleEngine {
	return &RuleEngine{
		logger:    logger,
		catalogue: cat,
	}
}

// Evaluate collects every rule whose conditions hold. The verdict level is the
// highest declared level among them, or low when nothing triggers.
func (e *RuleEngine) Evaluate(state *domain.SymptomState) domain.RuleVerdict {
	triggered := make([]string, 0)
	level := domain.RiskLow

	for _, rule := range e.catalogue.Rules {
		if !RuleHolds(rule, state) {
			continue
		}
		triggered = append(triggered, rule.ID)
		if rule.Level.Rank() > level.Rank() {
			level = rule.Level
		}
	}

	verdict := domain.RuleVerdict{
		RiskLevel:      level,
		TriggeredRules: domain.SortedSet(triggered),
		Confidence:     domain.DeterministicConfidence,
	}

	e.logger.WithFields(logrus.Fields{
		"session_id":      state.SessionID,
		"risk_level":      verdict.RiskLevel,
		"triggered_rules": len(verdict.TriggeredRules),
	}).Debug("Evaluated clinical rules")

	return verdict
}

// Catalogue returns the catalogue the engine evaluates.
func (e *RuleEngine) Catalogue() *catalogue.Catalogue {
	return e.catalogue
}

// RuleHolds reports whether every condition of rule is satisfied by the active
// answers in state. Missing answers and unknown values never satisfy a condition.
func RuleHolds(rule catalogue.Rule, state *domain.SymptomState) bool {
	if !rule.WeekAllows(state.GestationalWeek) {
		return false
	}
	for _, cond := range rule.When {
		entry, ok := state.Active(cond.Symptom)
		if !ok || !conditionHolds(cond, entry) {
			return false
		}
	}
	return true
}

func conditionHolds(cond catalogue.Condition, entry domain.SymptomEntry) bool {
	if !entry.Severity.Meets(cond.MinSeverity) {
		return false
	}
	if cond.DurationAboveHours != nil {
		if !entry.HasDuration() {
			return false
		}
		if *entry.DurationHours <= *cond.DurationAboveHours {
			return false
		}
	}
	return true
}
