package service

import (
	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/domain"
)

// Recommendation identifiers. Text is resolved by the locale provider.
const (
	RecContactProviderNow  = "rec.contact_provider_immediately"
	RecEmergencyCare       = "rec.go_to_emergency"
	RecDoNotWait           = "rec.do_not_wait_for_symptoms_to_pass"
	RecContactProviderSoon = "rec.contact_provider_48h"
	RecMonitorSymptoms     = "rec.monitor_symptoms"
	RecRestAndHydrate      = "rec.rest_and_hydrate"
	RecRoutineCare         = "rec.continue_prenatal_care"
	RecReportNewSymptoms   = "rec.report_new_symptoms"
)

// defaultRecommendations is the policy table: risk level to ordered actions.
var defaultRecommendations = map[domain.RiskLevel][]string{
	domain.RiskHigh:   {RecContactProviderNow, RecEmergencyCare, RecDoNotWait},
	domain.RiskMedium: {RecContactProviderSoon, RecMonitorSymptoms, RecRestAndHydrate},
	domain.RiskLow:    {RecRoutineCare, RecMonitorSymptoms, RecReportNewSymptoms},
}

// RecommendationMapper maps a final risk level to ordered recommendation ids.
type RecommendationMapper struct {
	table  map[domain.RiskLevel][]string
	locale domain.LocaleProvider
	logger *logrus.Logger
}

// NewRecommendationMapper creates a mapper over the default policy table.
func NewRecommendationMapper(locale domain.LocaleProvider, logger *logrus.Logger) *RecommendationMapper {
	return &RecommendationMapper{
		table:  defaultRecommendations,
		locale: locale,
		logger: logger,
	}
}

// Map returns a fresh copy of the ordered identifiers for level. The locale only
// decides how the identifiers will later be rendered; an unknown locale is
// logged and replaced by the default one. It never returns an empty list.
func (m *RecommendationMapper) Map(level domain.RiskLevel, locale string) []string {
	if _, ok := m.locale.Normalize(locale); !ok {
		m.logger.WithFields(logrus.Fields{
			"locale":   locale,
			"fallback": m.locale.DefaultLocale(),
		}).Warn("Unknown locale for recommendations, using default")
	}

	ids, ok := m.table[level]
	if !ok {
		// an invalid level is treated as the most conservative one
		ids = m.table[domain.RiskHigh]
	}
	return append([]string{}, ids...)
}
