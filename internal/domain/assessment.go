package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// RuleVerdict is the deterministic output of the rule engine for one state.
// Confidence is always "deterministic".
type RuleVerdict struct {
	RiskLevel      RiskLevel `json:"risk_level"`
	TriggeredRules []string  `json:"triggered_rules"`
	Confidence     string    `json:"confidence"`
}

// DeterministicConfidence is the fixed confidence label of every RuleVerdict.
const DeterministicConfidence = "deterministic"

// Triggered reports whether ruleID is among the triggered rules.
func (v RuleVerdict) Triggered(ruleID string) bool {
	for _, id := range v.TriggeredRules {
		if id == ruleID {
			return true
		}
	}
	return false
}

// AIVerdict is the validated, possibly degraded, output of the reasoning service.
// A nil Confidence means unknown.
type AIVerdict struct {
	RiskLevel  RiskLevel     `json:"risk_level"`
	Rationale  string        `json:"rationale"`
	Confidence *float64      `json:"confidence"`
	Status     VerdictStatus `json:"status"`
}

// UnavailableVerdict is returned whenever the reasoning service could not be used.
func UnavailableVerdict() AIVerdict {
	return AIVerdict{Status: VerdictUnavailable}
}

// ConfidenceKnown reports whether the verdict carries a usable confidence.
func (v AIVerdict) ConfidenceKnown() bool {
	return v.Status == VerdictOK && v.Confidence != nil
}

// Resolve fills a missing or invalid risk level with the concurrent rule level
// so a degraded reply is never read as low by default.
func (v AIVerdict) Resolve(fallback RiskLevel) AIVerdict {
	if !v.RiskLevel.IsValid() {
		v.RiskLevel = fallback
		v.Confidence = nil
		if v.Status == VerdictOK {
			v.Status = VerdictDegraded
		}
	}
	return v
}

// LogFields returns structured logging fields for audit trails.
func (v AIVerdict) LogFields() map[string]any {
	fields := map[string]any{
		"ai_risk_level": string(v.RiskLevel),
		"ai_status":     string(v.Status),
	}
	if v.Confidence != nil {
		fields["ai_confidence"] = *v.Confidence
	}
	return fields
}

// Assessment is the immutable terminal artifact of a session.
type Assessment struct {
	SessionID         string        `json:"session_id"`
	UserID            string        `json:"user_id,omitempty"`
	Locale            string        `json:"locale"`
	RiskLevel         RiskLevel     `json:"risk_level"`
	Explanation       string        `json:"explanation"`
	ContributingRules []string      `json:"contributing_rules"`
	AIRationale       string        `json:"ai_rationale"`
	RecommendationIDs []string      `json:"recommendation_ids"`
	RuleRiskLevel     RiskLevel     `json:"rule_risk_level"`
	AIRiskLevel       RiskLevel     `json:"ai_risk_level,omitempty"`
	AIStatus          VerdictStatus `json:"ai_status"`
	QuestionCount     int           `json:"question_count"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Clone returns a copy that shares no slices with a.
func (a Assessment) Clone() Assessment {
	a.ContributingRules = append([]string{}, a.ContributingRules...)
	a.RecommendationIDs = append([]string{}, a.RecommendationIDs...)
	return a
}

// Validate ensures the assessment is complete before it leaves the core.
func (a *Assessment) Validate() error {
	if a.SessionID == "" {
		return fmt.Errorf("assessment validation: %w", errors.New("session ID is required"))
	}
	if !a.RiskLevel.IsValid() {
		return fmt.Errorf("assessment validation: %w", ErrInvalidRiskLevel)
	}
	if !a.RuleRiskLevel.IsValid() {
		return fmt.Errorf("assessment validation: rule level: %w", ErrInvalidRiskLevel)
	}
	if a.RiskLevel.Rank() < a.RuleRiskLevel.Rank() {
		return fmt.Errorf("assessment validation: risk level %s below rule floor %s", a.RiskLevel, a.RuleRiskLevel)
	}
	if !a.AIStatus.IsValid() {
		return fmt.Errorf("assessment validation: %w", ErrInvalidVerdictStatus)
	}
	if len(a.RecommendationIDs) == 0 {
		return fmt.Errorf("assessment validation: %w", errors.New("at least one recommendation is required"))
	}
	if a.CreatedAt.IsZero() {
		return fmt.Errorf("assessment validation: %w", errors.New("created_at is required"))
	}
	return nil
}

// LogFields returns structured logging fields for audit trails.
func (a Assessment) LogFields() map[string]any {
	return map[string]any{
		"session_id":         a.SessionID,
		"risk_level":         string(a.RiskLevel),
		"rule_risk_level":    string(a.RuleRiskLevel),
		"ai_status":          string(a.AIStatus),
		"contributing_rules": len(a.ContributingRules),
		"question_count":     a.QuestionCount,
	}
}

// AssessmentRecord is what the append-only store keeps for one session:
// the assessment plus the full answer history it was derived from.
type AssessmentRecord struct {
	Assessment Assessment    `json:"assessment"`
	State      *SymptomState `json:"state,omitempty"`
}

// SortedSet returns the distinct values of ids in ascending order.
func SortedSet(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Timestamp truncates t to the precision kept by every store and codec.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
