// Package report turns finished assessments into patient-facing documents and
// aggregates a user's assessment history.
package report

import (
	"fmt"
	"strings"

	"github.com/gravilog-risk-core/internal/catalogue"
	"github.com/gravilog-risk-core/internal/domain"
)

// TextSource resolves report labels and reports the writing direction of a locale.
type TextSource interface {
	ResolveText(key, locale string) string
	IsRTL(locale string) bool
}

// Section is one headed block of a document.
type Section struct {
	Heading string
	Lines   []string
}

// Document is the renderer-independent content of an assessment report.
type Document struct {
	Title     string
	RTL       bool
	RiskLevel domain.RiskLevel
	Header    []string
	Sections  []Section
	Footer    string
}

// BuildDocument lays out an assessment in its own locale.
func BuildDocument(a domain.Assessment, texts TextSource, cat *catalogue.Catalogue) Document {
	locale := a.Locale
	t := func(key string) string { return texts.ResolveText(key, locale) }

	doc := Document{
		Title:     t("report.title"),
		RTL:       texts.IsRTL(locale),
		RiskLevel: a.RiskLevel,
		Header: []string{
			fmt.Sprintf("%s: %s", t("report.date"), a.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
			fmt.Sprintf("%s: %s", t("report.session"), a.SessionID),
			fmt.Sprintf("%s: %s", t("report.risk_level"), t("label.risk."+string(a.RiskLevel))),
		},
		Footer: t("disclaimer"),
	}

	doc.Sections = append(doc.Sections, Section{
		Heading: t("report.explanation"),
		Lines:   nonEmptyLines(a.Explanation),
	})

	findings := make([]string, 0, len(a.ContributingRules))
	for _, id := range a.ContributingRules {
		key := "rule." + id
		if cat != nil {
			if r, ok := cat.Rule(id); ok {
				key = r.DescriptionKey
			}
		}
		findings = append(findings, "- "+t(key))
	}
	if len(findings) == 0 {
		findings = []string{t("report.none")}
	}
	doc.Sections = append(doc.Sections, Section{Heading: t("report.rules"), Lines: findings})

	if a.AIRationale != "" {
		doc.Sections = append(doc.Sections, Section{
			Heading: t("report.ai_rationale"),
			Lines:   nonEmptyLines(a.AIRationale),
		})
	}

	recs := make([]string, 0, len(a.RecommendationIDs))
	for i, id := range a.RecommendationIDs {
		recs = append(recs, fmt.Sprintf("%d. %s", i+1, t(id)))
	}
	doc.Sections = append(doc.Sections, Section{Heading: t("report.recommendations"), Lines: recs})

	return doc
}

// PlainText renders a document as text, one line per entry.
func (d Document) PlainText() string {
	var b strings.Builder
	b.WriteString(d.Title)
	b.WriteString("\n\n")
	for _, h := range d.Header {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	for _, s := range d.Sections {
		b.WriteByte('\n')
		b.WriteString(s.Heading)
		b.WriteByte('\n')
		for _, l := range s.Lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	if d.Footer != "" {
		b.WriteByte('\n')
		b.WriteString(d.Footer)
		b.WriteByte('\n')
	}
	return b.String()
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
