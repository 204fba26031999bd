package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/gravilog-risk-core/internal/catalogue"
	"github.com/gravilog-risk-core/internal/domain"
	"github.com/gravilog-risk-core/internal/locale"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testCatalogue(t *testing.T) *catalogue.Catalogue {
	t.Helper()
	cat, err := catalogue.Default()
	require.NoError(t, err)
	return cat
}

func testLocale(t *testing.T) *locale.Provider {
	t.Helper()
	p, err := locale.NewProvider("en", testLogger())
	require.NoError(t, err)
	return p
}

func entry(symptom string, sev domain.Severity) domain.SymptomEntry {
	return domain.SymptomEntry{QuestionID: "q." + symptom, SymptomID: symptom, Severity: sev}
}

func entryFor(symptom string, sev domain.Severity, hours float64) domain.SymptomEntry {
	e := entry(symptom, sev)
	e.DurationHours = domain.Float(hours)
	return e
}

func stateWith(t *testing.T, week *int, entries ...domain.SymptomEntry) *domain.SymptomState {
	t.Helper()
	state := domain.NewSymptomState("test-session", "", "en", week)
	for _, e := range entries {
		require.NoError(t, state.Append(e))
	}
	return state
}

// fakeReasoner returns a fixed verdict after an optional delay.
type fakeReasoner struct {
	mu      sync.Mutex
	verdict domain.AIVerdict
	delay   time.Duration
	calls   int
	seen    []*domain.SymptomState
	context [][]domain.Passage
}

func (f *fakeReasoner) Assess(ctx context.Context, state *domain.SymptomState, passages []domain.Passage) domain.AIVerdict {
	f.mu.Lock()
	f.calls++
	f.seen = append(f.seen, state)
	f.context = append(f.context, passages)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.UnavailableVerdict()
		}
	}
	return f.verdict
}

func (f *fakeReasoner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memoryStore is an in-memory append-only store for service tests.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]*domain.AssessmentRecord
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*domain.AssessmentRecord)}
}

func (m *memoryStore) Append(_ context.Context, record *domain.AssessmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.records[record.Assessment.SessionID]; ok {
		return domain.ErrAlreadyExists
	}
	m.records[record.Assessment.SessionID] = record
	return nil
}

func (m *memoryStore) Get(_ context.Context, sessionID string) (*domain.AssessmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[sessionID]
	if !ok {
		return nil, domain.ErrAssessmentNotFound
	}
	return r, nil
}

func (m *memoryStore) ListByUser(_ context.Context, userID string, since time.Time) ([]domain.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Assessment
	for _, r := range m.records {
		if r.Assessment.UserID == userID && !r.Assessment.CreatedAt.Before(since) {
			out = append(out, r.Assessment)
		}
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func defaultAssessmentConfig() domain.AssessmentConfig {
	return domain.AssessmentConfig{
		MinQuestions:     3,
		MaxQuestions:     5,
		ReasoningTimeout: 2 * time.Second,
		SessionTTL:       time.Hour,
		CompletedTTL:     time.Hour,
		DefaultLocale:    "en",
	}
}
