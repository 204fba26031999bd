package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravilog-risk-core/internal/catalogue"
	"github.com/gravilog-risk-core/internal/domain"
	"github.com/gravilog-risk-core/internal/locale"
	"github.com/gravilog-risk-core/internal/report"
	"github.com/gravilog-risk-core/internal/service"
)

type unavailableReasoner struct{}

func (unavailableReasoner) Assess(context.Context, *domain.SymptomState, []domain.Passage) domain.AIVerdict {
	return domain.UnavailableVerdict()
}

type fakeRenderer struct{}

func (fakeRenderer) Render(a domain.Assessment) ([]byte, error) {
	return []byte("%PDF-1.4 " + a.SessionID), nil
}

func (fakeRenderer) ContentType() string { return "application/pdf" }

type memStore struct {
	records map[string]*domain.AssessmentRecord
}

func (m *memStore) Append(_ context.Context, r *domain.AssessmentRecord) error {
	m.records[r.Assessment.SessionID] = r
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*domain.AssessmentRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, domain.ErrAssessmentNotFound
	}
	return r, nil
}

func (m *memStore) ListByUser(_ context.Context, userID string, since time.Time) ([]domain.Assessment, error) {
	out := []domain.Assessment{}
	for _, r := range m.records {
		if r.Assessment.UserID == userID && !r.Assessment.CreatedAt.Before(since) {
			out = append(out, r.Assessment)
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func newTestServer(t *testing.T, checks map[string]HealthCheck) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	texts, err := locale.NewProvider("en", logger)
	require.NoError(t, err)
	cat, err := catalogue.Default()
	require.NoError(t, err)

	svc, err := service.NewAssessmentService(service.Dependencies{
		Catalogue: cat,
		Locale:    texts,
		Reasoner:  unavailableReasoner{},
		Store:     &memStore{records: map[string]*domain.AssessmentRecord{}},
		Renderer:  fakeRenderer{},
	}, domain.AssessmentConfig{
		MinQuestions:     3,
		MaxQuestions:     5,
		ReasoningTimeout: time.Second,
		SessionTTL:       time.Hour,
		CompletedTTL:     time.Hour,
		DefaultLocale:    "en",
	}, logger)
	require.NoError(t, err)

	return NewServer(domain.ServerConfig{WriteTimeout: 10 * time.Second}, svc, texts, checks, logger)
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSessionFlow(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
		"locale": "en-US", "user_id": "user-1", "gestational_week": 30,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	start := decode[service.StartResult](t, w)
	assert.Equal(t, "en", start.Locale)
	assert.Equal(t, "q.vaginal_bleeding", start.QuestionID)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))

	w = do(t, s, http.MethodGet, "/api/v1/sessions/"+start.SessionID+"/assessment", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no assessment while the session is running")

	questionID := start.QuestionID
	var final *AssessmentResponse
	for i := 0; i < 5 && final == nil; i++ {
		answer := AnswerRequest{QuestionID: questionID, Severity: "none"}
		if questionID == "q.vaginal_bleeding" {
			answer = AnswerRequest{QuestionID: questionID, FreeText: "heavy bleeding for 3 hours"}
		}
		w = do(t, s, http.MethodPost, "/api/v1/sessions/"+start.SessionID+"/answers", answer)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		turn := decode[TurnResponse](t, w)
		if turn.Complete {
			final = turn.Assessment
			break
		}
		questionID = turn.NextQuestionID
	}
	require.NotNil(t, final)
	assert.Equal(t, domain.RiskHigh, final.RiskLevel)
	assert.Equal(t, "High", final.RiskLabel)
	assert.Equal(t, "Contact your healthcare provider immediately.", final.Recommendations[0])
	assert.Equal(t, domain.VerdictUnavailable, final.AIStatus)

	w = do(t, s, http.MethodGet, "/api/v1/sessions/"+start.SessionID+"/assessment", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[AssessmentResponse](t, w)
	assert.Equal(t, final.SessionID, got.SessionID)

	w = do(t, s, http.MethodPost, "/api/v1/sessions/"+start.SessionID+"/answers", AnswerRequest{QuestionID: "q.fever", Severity: "none"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/sessions/"+start.SessionID+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), start.SessionID)

	w = do(t, s, http.MethodGet, "/api/v1/users/user-1/summary?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[report.Summary](t, w)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, domain.RiskHigh, summary.Highest)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		status   int
		wantCode string
	}{
		{"unknown session answer", http.MethodPost, "/api/v1/sessions/nope/answers", AnswerRequest{QuestionID: "q.fever", Severity: "none"}, http.StatusNotFound, domain.CodeNotFound},
		{"missing question id", http.MethodPost, "/api/v1/sessions/nope/answers", map[string]string{"severity": "none"}, http.StatusBadRequest, domain.CodeInvalidInput},
		{"bad week", http.MethodPost, "/api/v1/sessions", map[string]interface{}{"locale": "en", "gestational_week": 60}, http.StatusBadRequest, domain.CodeValidation},
		{"unknown assessment", http.MethodGet, "/api/v1/sessions/nope/assessment", nil, http.StatusNotFound, domain.CodeNotFound},
		{"abandon unknown", http.MethodDelete, "/api/v1/sessions/nope", nil, http.StatusNotFound, domain.CodeNotFound},
		{"bad days", http.MethodGet, "/api/v1/users/u/summary?days=abc", nil, http.StatusBadRequest, domain.CodeInvalidInput},
		{"days out of range", http.MethodGet, "/api/v1/users/u/summary?days=0", nil, http.StatusBadRequest, domain.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			e := decode[domain.ServiceError](t, w)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.NotEmpty(t, e.RequestID)
		})
	}
}

// brokenAssessor fails every call with err.
type brokenAssessor struct{ err error }

func (b brokenAssessor) StartSession(context.Context, service.StartRequest) (*service.StartResult, error) {
	return nil, b.err
}

func (b brokenAssessor) SubmitAnswer(context.Context, string, string, service.AnswerPayload) (*service.TurnResult, error) {
	return nil, b.err
}

func (b brokenAssessor) GetAssessment(context.Context, string) (*domain.Assessment, error) {
	return nil, b.err
}

func (b brokenAssessor) AbandonSession(context.Context, string) error { return b.err }

func (b brokenAssessor) RenderReport(context.Context, string) ([]byte, string, error) {
	return nil, "", b.err
}

func (b brokenAssessor) Summary(context.Context, string, int) (report.Summary, error) {
	return report.Summary{}, b.err
}

func TestDependencyFailuresHideDetails(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	texts, err := locale.NewProvider("en", logger)
	require.NoError(t, err)

	tests := []struct {
		name     string
		err      error
		path     string
		status   int
		wantCode string
	}{
		{"storage", fmt.Errorf("listing assessments: %w: %w", domain.ErrStorage, errors.New("pq: password authentication failed")),
			"/api/v1/users/u/summary", http.StatusServiceUnavailable, domain.CodeStorage},
		{"render", fmt.Errorf("%w: font missing at /opt/fonts", domain.ErrRender),
			"/api/v1/sessions/s-1/report", http.StatusServiceUnavailable, domain.CodeRender},
		{"unexpected", errors.New("nil map write in /src/service.go"),
			"/api/v1/sessions/s-1/assessment", http.StatusInternalServerError, domain.CodeInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(domain.ServerConfig{}, brokenAssessor{err: tt.err}, texts, nil, logger)
			w := do(t, s, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, w.Code)
			e := decode[domain.ServiceError](t, w)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.NotContains(t, w.Body.String(), "/")
		})
	}
}

func TestAbandonSession(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/api/v1/sessions", map[string]string{"locale": "ar"})
	require.Equal(t, http.StatusCreated, w.Code)
	start := decode[service.StartResult](t, w)
	assert.Equal(t, "ar", start.Locale)

	w = do(t, s, http.MethodDelete, "/api/v1/sessions/"+start.SessionID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/sessions/"+start.SessionID+"/answers", AnswerRequest{QuestionID: start.QuestionID, Severity: "none"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(t, map[string]HealthCheck{
			"store": func(context.Context) error { return nil },
		})
		w := do(t, s, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"healthy"`)
	})

	t.Run("degraded", func(t *testing.T) {
		s := newTestServer(t, map[string]HealthCheck{
			"cache": func(context.Context) error { return errors.New("redis down") },
		})
		w := do(t, s, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "redis down")
	})
}
