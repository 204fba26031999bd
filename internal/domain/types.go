// Package domain contains the core entities of the pregnancy symptom risk assessment:
// the symptom record gathered during a session, the rule and reasoning verdicts
// computed from it, and the final assessment handed to reporting and storage.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// RiskLevel is the three-step risk classification shared by every verdict.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Severity is the normalized severity of a single reported symptom.
// SeverityUnknown is the result of a failed extraction and never satisfies a threshold.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityUnknown  Severity = "unknown"
)

// VerdictStatus describes how much of a reasoning reply survived validation.
type VerdictStatus string

const (
	VerdictOK          VerdictStatus = "ok"
	VerdictDegraded    VerdictStatus = "degraded"
	VerdictUnavailable VerdictStatus = "unavailable"
)

// Validation errors for assessment data integrity
var (
	ErrInvalidRiskLevel     = errors.New("invalid risk level")
	ErrInvalidSeverity      = errors.New("invalid severity")
	ErrInvalidVerdictStatus = errors.New("invalid verdict status")
)

// ParseRiskLevel normalizes case and surrounding whitespace before validating.
func ParseRiskLevel(s string) (RiskLevel, error) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRiskLevel, s)
	}
	return level, nil
}

// IsValid reports whether the level is one of the three enumerated values.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	return string(r)
}

// Rank orders levels low < medium < high. Invalid levels rank below low.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r is the same as or more severe than other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Rank() >= other.Rank()
}

// MaxRisk returns the most conservative of the given levels, or RiskLow when none is valid.
func MaxRisk(levels ...RiskLevel) RiskLevel {
	max := RiskLow
	for _, l := range levels {
		if l.Rank() > max.Rank() {
			max = l
		}
	}
	return max
}

// RequiresPromptCare reports whether the level calls for contacting a provider
// rather than continuing routine prenatal care.
func (r RiskLevel) RequiresPromptCare() bool {
	return r == RiskMedium || r == RiskHigh
}

// LogFields returns structured logging fields for audit trails.
func (r RiskLevel) LogFields() map[string]any {
	return map[string]any{
		"risk_level":           string(r),
		"risk_rank":            r.Rank(),
		"requires_prompt_care": r.RequiresPromptCare(),
	}
}

// ParseSeverity normalizes case and surrounding whitespace before validating.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
	return sev, nil
}

// IsValid reports whether the severity is a recognized value, unknown included.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityNone, SeverityMild, SeverityModerate, SeveritySevere, SeverityUnknown:
		return true
	default:
		return false
	}
}

// IsKnown reports whether the severity carries evidence that a rule may use.
func (s Severity) IsKnown() bool {
	return s.IsValid() && s != SeverityUnknown
}

// Rank orders known severities none < mild < moderate < severe.
// Unknown and invalid severities rank -1 so they never reach any threshold.
func (s Severity) Rank() int {
	switch s {
	case SeverityNone:
		return 0
	case SeverityMild:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	default:
		return -1
	}
}

// Meets reports whether s is known and at or above threshold.
func (s Severity) Meets(threshold Severity) bool {
	if !s.IsKnown() || !threshold.IsKnown() {
		return false
	}
	return s.Rank() >= threshold.Rank()
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// IsValid reports whether the status is recognized.
func (v VerdictStatus) IsValid() bool {
	switch v {
	case VerdictOK, VerdictDegraded, VerdictUnavailable:
		return true
	default:
		return false
	}
}
