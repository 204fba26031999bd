package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gravilog-risk-core/internal/domain"
)

// DefaultFrequentRules is how many findings a summary lists.
const DefaultFrequentRules = 3

// RuleCount is how often a rule contributed to a user's assessments.
type RuleCount struct {
	RuleID string `json:"rule_id"`
	Count  int    `json:"count"`
}

// Summary aggregates a user's assessments over a period.
type Summary struct {
	UserID        string                   `json:"user_id"`
	Since         time.Time                `json:"since"`
	Until         time.Time                `json:"until"`
	Total         int                      `json:"total"`
	Counts        map[domain.RiskLevel]int `json:"counts"`
	Highest       domain.RiskLevel         `json:"highest_risk_level,omitempty"`
	FrequentRules []RuleCount              `json:"frequent_rules"`
	Latest        *domain.Assessment       `json:"latest,omitempty"`
}

// Summarize aggregates assessments created in [since, until]. Assessments
// outside the period are ignored.
func Summarize(userID string, assessments []domain.Assessment, since, until time.Time, topN int) Summary {
	if topN <= 0 {
		topN = DefaultFrequentRules
	}
	s := Summary{
		UserID: userID,
		Since:  since,
		Until:  until,
		Counts: map[domain.RiskLevel]int{
			domain.RiskLow:    0,
			domain.RiskMedium: 0,
			domain.RiskHigh:   0,
		},
		FrequentRules: []RuleCount{},
	}

	ruleCounts := make(map[string]int)
	for i := range assessments {
		a := assessments[i]
		if a.CreatedAt.Before(since) || a.CreatedAt.After(until) {
			continue
		}
		s.Total++
		s.Counts[a.RiskLevel]++
		if a.RiskLevel.Rank() > s.Highest.Rank() {
			s.Highest = a.RiskLevel
		}
		for _, id := range a.ContributingRules {
			ruleCounts[id]++
		}
		if s.Latest == nil || a.CreatedAt.After(s.Latest.CreatedAt) {
			latest := a.Clone()
			s.Latest = &latest
		}
	}

	for id, n := range ruleCounts {
		s.FrequentRules = append(s.FrequentRules, RuleCount{RuleID: id, Count: n})
	}
	sort.Slice(s.FrequentRules, func(i, j int) bool {
		if s.FrequentRules[i].Count != s.FrequentRules[j].Count {
			return s.FrequentRules[i].Count > s.FrequentRules[j].Count
		}
		return s.FrequentRules[i].RuleID < s.FrequentRules[j].RuleID
	})
	if len(s.FrequentRules) > topN {
		s.FrequentRules = s.FrequentRules[:topN]
	}
	return s
}

// Text renders a summary for the terminal and tool surfaces.
func (s Summary) Text(texts TextSource, locale string) string {
	t := func(key string) string { return texts.ResolveText(key, locale) }

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s - %s)\n", t("summary.title"), s.Since.Format("2006-01-02"), s.Until.Format("2006-01-02"))
	fmt.Fprintf(&b, "%s: %d\n", t("summary.total"), s.Total)
	for _, level := range []domain.RiskLevel{domain.RiskHigh, domain.RiskMedium, domain.RiskLow} {
		fmt.Fprintf(&b, "  %s: %d\n", t("label.risk."+string(level)), s.Counts[level])
	}
	if s.Total == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "%s: %s\n", t("summary.highest"), t("label.risk."+string(s.Highest)))
	if len(s.FrequentRules) > 0 {
		fmt.Fprintf(&b, "%s:\n", t("summary.frequent"))
		for _, rc := range s.FrequentRules {
			fmt.Fprintf(&b, "  - %s (%d)\n", t("rule."+rc.RuleID), rc.Count)
		}
	}
	return b.String()
}
