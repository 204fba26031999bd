// Package locale resolves question, recommendation and template keys to text in
// the supported languages.
package locale

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed tables/*.yaml
var tables embed.FS

// DefaultLocale is used when no configured default is given.
const DefaultLocale = "en"

// Table is the string table of one language.
type Table struct {
	Name      string            `yaml:"name"`
	Direction string            `yaml:"direction"`
	Text      map[string]string `yaml:"text"`
}

// Provider serves the embedded string tables. It is read-only after construction
// and safe for concurrent use.
type Provider struct {
	tables        map[string]*Table
	defaultLocale string
	logger        *logrus.Logger
}

var aliases = map[string]string{
	"english": "en",
	"eng":     "en",
	"arabic":  "ar",
	"ara":     "ar",
	"عربي":    "ar",
	"العربية": "ar",
}

// NewProvider loads every embedded table.
func NewProvider(defaultLocale string, logger *logrus.Logger) (*Provider, error) {
	entries, err := tables.ReadDir("tables")
	if err != nil {
		return nil, fmt.Errorf("reading locale tables: %w", err)
	}

	p := &Provider{
		tables: make(map[string]*Table, len(entries)),
		logger: logger,
	}
	for _, entry := range entries {
		data, err := tables.ReadFile(path.Join("tables", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading locale table %s: %w", entry.Name(), err)
		}
		var t Table
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parsing locale table %s: %w", entry.Name(), err)
		}
		p.tables[strings.TrimSuffix(entry.Name(), path.Ext(entry.Name()))] = &t
	}

	if defaultLocale == "" {
		defaultLocale = DefaultLocale
	}
	normalized, ok := p.Normalize(defaultLocale)
	if !ok {
		return nil, fmt.Errorf("default locale %q has no string table", defaultLocale)
	}
	p.defaultLocale = normalized

	return p, nil
}

// Normalize maps "en-US", "EN_gb" or "arabic" style inputs to a table key and
// reports whether a table exists for it.
func (p *Provider) Normalize(locale string) (string, bool) {
	l := strings.ToLower(strings.TrimSpace(locale))
	if a, ok := aliases[l]; ok {
		l = a
	}
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	_, ok := p.tables[l]
	return l, ok
}

// DefaultLocale returns the fallback locale.
func (p *Provider) DefaultLocale() string {
	return p.defaultLocale
}

// Resolve returns the supported locale for the request, substituting the default
// for an unknown one. The substitution is logged, never raised.
func (p *Provider) Resolve(locale string) string {
	if l, ok := p.Normalize(locale); ok {
		return l
	}
	p.logger.WithFields(logrus.Fields{
		"locale":   locale,
		"fallback": p.defaultLocale,
	}).Warn("Unknown locale, falling back to default")
	return p.defaultLocale
}

// ResolveText returns the text for key in locale, falling back to the default
// locale and finally to the key itself.
func (p *Provider) ResolveText(key, locale string) string {
	l, ok := p.Normalize(locale)
	if !ok {
		l = p.defaultLocale
	}
	if text, ok := p.tables[l].Text[key]; ok {
		return text
	}
	if text, ok := p.tables[p.defaultLocale].Text[key]; ok {
		p.logger.WithFields(logrus.Fields{"key": key, "locale": l}).Debug("Missing translation, using default locale")
		return text
	}
	p.logger.WithField("key", key).Warn("No text for key in any locale")
	return key
}

// IsRTL reports whether the locale is written right to left.
func (p *Provider) IsRTL(locale string) bool {
	l, ok := p.Normalize(locale)
	if !ok {
		l = p.defaultLocale
	}
	return p.tables[l].Direction == "rtl"
}

// Locales lists the supported locale keys.
func (p *Provider) Locales() []string {
	out := make([]string, 0, len(p.tables))
	for k := range p.tables {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DetectLanguage guesses the locale of free text. Text that is mostly Arabic
// script is "ar", anything else is "en".
func DetectLanguage(text string) string {
	var arabic, letters int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if letters > 0 && arabic*2 >= letters {
		return "ar"
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "arabic") {
		return "ar"
	}
	return "en"
}
