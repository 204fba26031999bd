package domain

import (
	"context"
	"time"
)

// Passage is one retrieved knowledge snippet the reasoning service may consult.
type Passage struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Reasoner produces an advisory verdict from the external reasoning service.
// Implementations never return an error; failures become an unavailable verdict.
type Reasoner interface {
	Assess(ctx context.Context, state *SymptomState, passages []Passage) AIVerdict
}

// KnowledgeRetriever supplies passages from the external knowledge store.
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, state *SymptomState) ([]Passage, error)
}

// LocaleProvider resolves question, recommendation and template keys to text.
type LocaleProvider interface {
	ResolveText(key, locale string) string
	Normalize(locale string) (string, bool)
	DefaultLocale() string
}

// ReportRenderer turns one assessment into a document.
type ReportRenderer interface {
	Render(assessment Assessment) ([]byte, error)
	ContentType() string
}

// AssessmentStore persists assessments append-only, keyed by session ID.
type AssessmentStore interface {
	Append(ctx context.Context, record *AssessmentRecord) error
	Get(ctx context.Context, sessionID string) (*AssessmentRecord, error)
	ListByUser(ctx context.Context, userID string, since time.Time) ([]Assessment, error)
	Close() error
}

// AuditTrail stores the complete answer history of a finished session.
type AuditTrail interface {
	SaveTrail(ctx context.Context, state *SymptomState) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetAssessmentConfig() *AssessmentConfig
	GetReasoningConfig() *ReasoningConfig
	Validate() error
}
