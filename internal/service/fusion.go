package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/catalogue"
	"github.com/gravilog-risk-core/internal/domain"
)

// Explanation template keys resolved through the locale provider.
const (
	keyLevelPrefix     = "explanation.level."
	keyRuleBasis       = "explanation.rule_basis"
	keyNoRules         = "explanation.no_rules"
	keyAIOpinion       = "explanation.ai_opinion"
	keyAIInconclusive  = "explanation.ai_inconclusive"
	keyAIUnavailable   = "explanation.ai_unavailable"
	keyDisagreement    = "explanation.disagreement"
	keyRiskLabelPrefix = "label.risk."
)

// FusionArbiter merges the rule verdict and the reasoning verdict into one
// assessment. The most conservative level wins and both signals are explained.
type FusionArbiter struct {
	catalogue *catalogue.Catalogue
	locale    domain.LocaleProvider
	logger    *logrus.Logger
	now       func() time.Time
}

// NewFusionArbiter creates a fusion arbiter
func NewFusionArbiter(cat *catalogue.Catalogue, locale domain.LocaleProvider, logger *logrus.Logger) *FusionArbiter {
	return &FusionArbiter{
		catalogue: cat,
		locale:    locale,
		logger:    logger,
		now:       time.Now,
	}
}

// Fuse produces the assessment body. Session identity, question count and
// recommendations are attached by the caller.
func (f *FusionArbiter) Fuse(rule domain.RuleVerdict, ai domain.AIVerdict, locale string) domain.Assessment {
	aiLevel := domain.RiskLevel("")
	contribution := domain.RiskLow
	rationale := ""
	if ai.ConfidenceKnown() && ai.RiskLevel.IsValid() {
		aiLevel = ai.RiskLevel
		contribution = ai.RiskLevel
		rationale = strings.TrimSpace(ai.Rationale)
	}

	final := domain.MaxRisk(rule.RiskLevel, contribution)
	status := ai.Status
	if !status.IsValid() {
		status = domain.VerdictUnavailable
	}

	assessment := domain.Assessment{
		Locale:            locale,
		RiskLevel:         final,
		ContributingRules: domain.SortedSet(rule.TriggeredRules),
		AIRationale:       rationale,
		RuleRiskLevel:     rule.RiskLevel,
		AIRiskLevel:       aiLevel,
		AIStatus:          status,
		CreatedAt:         domain.Timestamp(f.now()),
	}
	assessment.Explanation = f.explain(assessment, ai, locale)

	if aiLevel != "" && aiLevel != rule.RiskLevel {
		f.logger.WithFields(logrus.Fields{
			"rule_risk_level": rule.RiskLevel,
			"ai_risk_level":   aiLevel,
			"final":           final,
		}).Info("Rule and reasoning verdicts disagree")
	}

	return assessment
}

func (f *FusionArbiter) explain(a domain.Assessment, ai domain.AIVerdict, locale string) string {
	parts := []string{f.locale.ResolveText(keyLevelPrefix+string(a.RiskLevel), locale)}

	if len(a.ContributingRules) > 0 {
		descriptions := make([]string, 0, len(a.ContributingRules))
		for _, id := range a.ContributingRules {
			key := "rule." + id
			if r, ok := f.catalogue.Rule(id); ok {
				key = r.DescriptionKey
			}
			descriptions = append(descriptions, f.locale.ResolveText(key, locale))
		}
		parts = append(parts, f.locale.ResolveText(keyRuleBasis, locale)+" "+strings.Join(descriptions, "; ")+".")
	} else {
		parts = append(parts, f.locale.ResolveText(keyNoRules, locale))
	}

	switch {
	case a.AIRiskLevel != "":
		opinion := f.fill(keyAIOpinion, locale, map[string]string{
			"{level}":      f.label(a.AIRiskLevel, locale),
			"{confidence}": strconv.Itoa(int(*ai.Confidence*100 + 0.5)),
		})
		if a.AIRationale != "" {
			opinion += " " + a.AIRationale
		}
		parts = append(parts, opinion)
		if a.AIRiskLevel != a.RuleRiskLevel {
			parts = append(parts, f.fill(keyDisagreement, locale, map[string]string{
				"{rule_level}":  f.label(a.RuleRiskLevel, locale),
				"{ai_level}":    f.label(a.AIRiskLevel, locale),
				"{final_level}": f.label(a.RiskLevel, locale),
			}))
		}
	case a.AIStatus == domain.VerdictUnavailable:
		parts = append(parts, f.locale.ResolveText(keyAIUnavailable, locale))
	default:
		parts = append(parts, f.locale.ResolveText(keyAIInconclusive, locale))
	}

	return strings.Join(parts, " ")
}

func (f *FusionArbiter) label(level domain.RiskLevel, locale string) string {
	return f.locale.ResolveText(keyRiskLabelPrefix+string(level), locale)
}

func (f *FusionArbiter) fill(key, locale string, values map[string]string) string {
	text := f.locale.ResolveText(key, locale)
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, k, v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
