package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gravilog-risk-core/internal/catalogue"
	"github.com/gravilog-risk-core/internal/domain"
)

// maxFreeTextLength bounds what is stored on an entry.
const maxFreeTextLength = 500

// AnswerPayload is the raw answer submitted for a question.
type AnswerPayload struct {
	Severity      string   `json:"severity,omitempty"`
	DurationHours *float64 `json:"duration_hours,omitempty"`
	FreeText      string   `json:"free_text,omitempty"`
}

// AnswerParser normalizes raw answers into symptom entries. Free text is reduced
// to a severity here so the rule engine never sees raw text.
type AnswerParser struct {
	now func() time.Time
}

// NewAnswerParser creates a new answer parser
func NewAnswerParser() *AnswerParser {
	return &AnswerParser{now: time.Now}
}

var (
	uncertainPattern   = regexp.MustCompile(`\b(don'?t know|not sure|unsure|no idea|can'?t tell)\b`)
	severePattern      = regexp.MustCompile(`\b(severe|extreme|extremely|intense|worst|unbearable|heavy|very bad|a lot|constant)\b`)
	moderatePattern    = regexp.MustCompile(`\b(moderate|moderately|medium|noticeable|quite|some)\b`)
	mildPattern        = regexp.MustCompile(`\b(mild|mildly|slight|slightly|minor|a little|a bit|light)\b`)
	negationPattern    = regexp.MustCompile(`\b(no|none|not|never|without|nothing|normal|don'?t|haven'?t|hasn'?t|isn'?t|doesn'?t)\b`)
	reassurePattern    = regexp.MustCompile(`\b(fine|okay|ok|alright|good|(feel|feeling|doing|am|i'm) well)\b`)
	unwellPattern      = regexp.MustCompile(`\b(not|don'?t feel|do not feel)\s+(feeling\s+|very\s+|so\s+)?(fine|okay|ok|well|good|alright)\b`)
	affirmPattern      = regexp.MustCompile(`\b(yes|yeah|yep|yup|i have|i do|i am|i'm|there is|it is|it's|definitely)\b`)
	clauseBreakPattern = regexp.MustCompile(`[.,;!?،؛؟]+|\b(but|and|however|although|though)\b|\sلكن\s`)
	durationPattern    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(hours?|hrs?|h|days?|d|minutes?|mins?)\b`)

	arabicUncertain = []string{"لا أعرف", "لا اعرف", "غير متأكد", "غير متأكدة", "مش عارف"}
	arabicSevere    = []string{"شديد", "شديدة", "قوي", "قوية", "حاد", "حادة", "كثير", "مستمر"}
	arabicModerate  = []string{"متوسط", "متوسطة"}
	arabicMild      = []string{"خفيف", "خفيفة", "بسيط", "بسيطة", "قليل", "قليلة"}
	arabicNegation  = []string{"لا", "ليس", "بدون", "لم", "طبيعي", "طبيعية", "مش"}
	arabicReassure  = []string{"بخير", "تمام", "كويس", "كويسة", "منيح"}
	arabicUnwell    = []string{"لست بخير", "ليس بخير", "ليست بخير", "مش كويس", "مش كويسة", "مش تمام", "مش منيح"}
	arabicAffirm    = []string{"نعم", "أجل", "ايوه", "أيوة"}
)

// Parse validates payload against q and builds the entry to append.
func (p *AnswerParser) Parse(q catalogue.Question, payload AnswerPayload) (domain.SymptomEntry, error) {
	text := strings.TrimSpace(payload.FreeText)
	if payload.Severity == "" && text == "" {
		return domain.SymptomEntry{}, domain.NewValidationError("answer", "severity or free text is required", payload)
	}
	if payload.DurationHours != nil && *payload.DurationHours < 0 {
		return domain.SymptomEntry{}, domain.NewValidationError("duration_hours", "duration cannot be negative", *payload.DurationHours)
	}
	if len([]rune(text)) > maxFreeTextLength {
		text = string([]rune(text)[:maxFreeTextLength])
	}

	entry := domain.SymptomEntry{
		QuestionID:    q.ID,
		SymptomID:     q.Symptom,
		DurationHours: payload.DurationHours,
		FreeText:      text,
		RecordedAt:    domain.Timestamp(p.now()),
	}

	if payload.Severity != "" {
		sev, err := domain.ParseSeverity(payload.Severity)
		if err != nil {
			return domain.SymptomEntry{}, domain.NewValidationError("severity", err.Error(), payload.Severity)
		}
		entry.Severity = sev
	} else {
		sev, err := p.severityFromText(q, text)
		if err != nil {
			return domain.SymptomEntry{}, err
		}
		entry.Severity = sev
	}

	if entry.DurationHours == nil && text != "" {
		entry.DurationHours = ExtractDurationHours(text)
	}

	return entry, nil
}

func (p *AnswerParser) severityFromText(q catalogue.Question, text string) (domain.Severity, error) {
	if q.Kind == catalogue.KindReading {
		bp, found, err := domain.ParseBloodPressure(text)
		if err != nil {
			return "", err
		}
		if found {
			return bp.Category().Severity(), nil
		}
	}
	return ExtractSeverity(text), nil
}

// ExtractSeverity reads a severity from English or Arabic free text. Anything
// it cannot classify is unknown.
//
// The text is split into clauses. A negation ahead of a severity word in the
// same clause cancels it, so "no severe pain" is none. The highest severity
// left standing wins. Otherwise a negation or a reassurance such as "I am fine"
// is none, and only a bare affirmation like "yes" counts as mild.
func ExtractSeverity(text string) domain.Severity {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch {
	case lower == "":
		return domain.SeverityUnknown
	case uncertainPattern.MatchString(lower) || containsAny(lower, arabicUncertain):
		return domain.SeverityUnknown
	case unwellPattern.MatchString(lower) || containsAny(lower, arabicUnwell):
		return domain.SeverityUnknown
	}

	best := domain.SeverityUnknown
	denied := false
	for _, clause := range clauseBreakPattern.Split(lower, -1) {
		sev, negated := clauseSeverity(clause)
		if sev.Rank() > best.Rank() {
			best = sev
		}
		denied = denied || negated
	}

	switch {
	case best != domain.SeverityUnknown:
		return best
	case denied:
		return domain.SeverityNone
	case isBareAffirmation(lower):
		return domain.SeverityMild
	default:
		return domain.SeverityUnknown
	}
}

// clauseSeverity returns the severity a clause asserts, or unknown with
// negated set when the clause only denies or reassures.
func clauseSeverity(clause string) (domain.Severity, bool) {
	negAt := firstIndex(negationPattern, clause, wordIndex(clause, arabicNegation))

	levels := []struct {
		sev     domain.Severity
		pattern *regexp.Regexp
		arabic  []string
	}{
		{domain.SeveritySevere, severePattern, arabicSevere},
		{domain.SeverityModerate, moderatePattern, arabicModerate},
		{domain.SeverityMild, mildPattern, arabicMild},
	}
	for _, l := range levels {
		at := firstIndex(l.pattern, clause, substringIndex(clause, l.arabic))
		if at < 0 {
			continue
		}
		if negAt >= 0 && negAt < at {
			return domain.SeverityUnknown, true
		}
		return l.sev, false
	}

	reassured := reassurePattern.MatchString(clause) || wordIndex(clause, arabicReassure) >= 0
	return domain.SeverityUnknown, negAt >= 0 || reassured
}

// isBareAffirmation reports whether text holds nothing but affirmation words.
func isBareAffirmation(text string) bool {
	if !affirmPattern.MatchString(text) && wordIndex(text, arabicAffirm) < 0 {
		return false
	}
	for _, field := range strings.Fields(affirmPattern.ReplaceAllString(text, " ")) {
		field = strings.Trim(field, ".,!?،؟")
		if field != "" && !isWord(field, arabicAffirm) {
			return false
		}
	}
	return true
}

// firstIndex returns the earlier of the pattern's first match and other, or -1.
func firstIndex(re *regexp.Regexp, text string, other int) int {
	at := -1
	if loc := re.FindStringIndex(text); loc != nil {
		at = loc[0]
	}
	if other >= 0 && (at < 0 || other < at) {
		at = other
	}
	return at
}

func substringIndex(text string, words []string) int {
	at := -1
	for _, w := range words {
		if i := strings.Index(text, w); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	return at
}

// wordIndex returns the byte offset of the first whole word in words. The short
// Arabic particles must not match inside longer words.
func wordIndex(text string, words []string) int {
	pos := 0
	for _, field := range strings.Fields(text) {
		at := pos + strings.Index(text[pos:], field)
		pos = at + len(field)
		if isWord(strings.Trim(field, ".,!?،؟"), words) {
			return at
		}
	}
	return -1
}

func isWord(field string, words []string) bool {
	for _, w := range words {
		if field == w {
			return true
		}
	}
	return false
}

// ExtractDurationHours reads the first "3 hours" or "2 days" style duration.
func ExtractDurationHours(text string) *float64 {
	m := durationPattern.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	switch unit := m[2]; {
	case strings.HasPrefix(unit, "d"):
		v *= 24
	case strings.HasPrefix(unit, "m"):
		v /= 60
	}
	return &v
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// String renders the payload for logs without the free text.
func (a AnswerPayload) String() string {
	d := "unknown"
	if a.DurationHours != nil {
		d = strconv.FormatFloat(*a.DurationHours, 'f', -1, 64)
	}
	return fmt.Sprintf("severity=%q duration_hours=%s free_text_len=%d", a.Severity, d, len(a.FreeText))
}
