package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gravilog-risk-core/internal/domain"
)

type fakeRenderer struct{}

func (fakeRenderer) Render(a domain.Assessment) ([]byte, error) {
	return []byte("%PDF-" + string(a.RiskLevel)), nil
}

func (fakeRenderer) ContentType() string { return "application/pdf" }

type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, *domain.SymptomState) ([]domain.Passage, error) {
	return nil, errors.New("index offline")
}

type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) Retrieve(ctx context.Context, state *domain.SymptomState) ([]domain.Passage, error) {
	args := m.Called(ctx, state)
	passages, _ := args.Get(0).([]domain.Passage)
	return passages, args.Error(1)
}

func newTestService(t *testing.T, reasoner domain.Reasoner, store domain.AssessmentStore, mutate func(*Dependencies, *domain.AssessmentConfig)) *AssessmentService {
	t.Helper()
	deps := Dependencies{
		Catalogue: testCatalogue(t),
		Locale:    testLocale(t),
		Reasoner:  reasoner,
		Store:     store,
	}
	cfg := defaultAssessmentConfig()
	if mutate != nil {
		mutate(&deps, &cfg)
	}
	svc, err := NewAssessmentService(deps, cfg, testLogger())
	require.NoError(t, err)
	return svc
}

// runSession answers every question with the payload from answer until an assessment is returned.
func runSession(t *testing.T, svc *AssessmentService, req StartRequest, answer func(questionID string) AnswerPayload) (*StartResult, *domain.Assessment) {
	t.Helper()
	ctx := context.Background()

	start, err := svc.StartSession(ctx, req)
	require.NoError(t, err)

	questionID := start.QuestionID
	for i := 0; i < 10; i++ {
		turn, err := svc.SubmitAnswer(ctx, start.SessionID, questionID, answer(questionID))
		require.NoError(t, err)
		if turn.Complete() {
			return start, turn.Assessment
		}
		require.NotEmpty(t, turn.QuestionText)
		questionID = turn.NextQuestionID
	}
	t.Fatal("session never completed")
	return nil, nil
}

func answerNone(string) AnswerPayload { return AnswerPayload{Severity: "none"} }

func TestAssessmentService_SevereBleedingIsHigh(t *testing.T) {
	reasoner := &fakeReasoner{verdict: aiVerdict(domain.RiskLow, 0.9, "Probably fine.")}
	store := newMemoryStore()
	svc := newTestService(t, reasoner, store, nil)

	start, a := runSession(t, svc, StartRequest{Locale: "en", UserID: "user-1", GestationalWeek: domain.Int(32)},
		func(questionID string) AnswerPayload {
			if questionID == "q.vaginal_bleeding" {
				return AnswerPayload{Severity: "severe", DurationHours: domain.Float(3)}
			}
			return answerNone(questionID)
		})

	assert.Equal(t, "q.vaginal_bleeding", start.QuestionID)
	assert.Equal(t, "en", start.Locale)
	assert.NotEmpty(t, start.Greeting)

	assert.Equal(t, domain.RiskHigh, a.RiskLevel)
	assert.Contains(t, a.ContributingRules, "bleeding_severe_prolonged")
	assert.Equal(t, RecContactProviderNow, a.RecommendationIDs[0])
	assert.Equal(t, 3, a.QuestionCount)
	assert.Equal(t, domain.RiskLow, a.AIRiskLevel)
	assert.Equal(t, "user-1", a.UserID)

	require.Equal(t, 1, reasoner.Calls())
	assert.Len(t, reasoner.seen[0].Entries, 3)

	assert.Equal(t, 1, store.Len())
	record, err := store.Get(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, a.RiskLevel, record.Assessment.RiskLevel)
	assert.Len(t, record.State.Entries, 3)
}

func TestAssessmentService_ReasoningRaisesLevel(t *testing.T) {
	reasoner := &fakeReasoner{verdict: aiVerdict(domain.RiskMedium, 0.6, "Several mild complaints together.")}
	svc := newTestService(t, reasoner, nil, nil)

	_, a := runSession(t, svc, StartRequest{Locale: "en"}, answerNone)

	assert.Equal(t, domain.RiskMedium, a.RiskLevel)
	assert.Equal(t, domain.RiskLow, a.RuleRiskLevel)
	assert.Empty(t, a.ContributingRules)
	assert.Contains(t, a.Explanation, "Several mild complaints together.")
	assert.Equal(t, RecContactProviderSoon, a.RecommendationIDs[0])
}

func TestAssessmentService_ReasoningTimeout(t *testing.T) {
	reasoner := &fakeReasoner{
		verdict: aiVerdict(domain.RiskHigh, 0.9, "late"),
		delay:   2 * time.Second,
	}
	svc := newTestService(t, reasoner, nil, func(_ *Dependencies, cfg *domain.AssessmentConfig) {
		cfg.ReasoningTimeout = 50 * time.Millisecond
	})

	started := time.Now()
	_, a := runSession(t, svc, StartRequest{Locale: "en", GestationalWeek: domain.Int(20)},
		func(questionID string) AnswerPayload {
			if questionID == "q.headache_vision" {
				return AnswerPayload{Severity: "mild"}
			}
			return answerNone(questionID)
		})

	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, domain.VerdictUnavailable, a.AIStatus)
	assert.Equal(t, a.RuleRiskLevel, a.RiskLevel)
	assert.Empty(t, a.AIRiskLevel)
	assert.Contains(t, a.Explanation, "unavailable")
}

func TestAssessmentService_RetrieverFailureIsNotFatal(t *testing.T) {
	reasoner := &fakeReasoner{verdict: aiVerdict(domain.RiskLow, 0.8, "ok")}
	svc := newTestService(t, reasoner, nil, func(deps *Dependencies, _ *domain.AssessmentConfig) {
		deps.Retriever = failingRetriever{}
	})

	_, a := runSession(t, svc, StartRequest{Locale: "en"}, answerNone)
	assert.Equal(t, domain.VerdictOK, a.AIStatus)
}

func TestAssessmentService_RetrievedPassagesReachReasoner(t *testing.T) {
	passages := []domain.Passage{{Source: "acog-bulletin", Text: "Bleeding in the third trimester needs prompt evaluation."}}
	retriever := &mockRetriever{}
	retriever.On("Retrieve", mock.Anything, mock.AnythingOfType("*domain.SymptomState")).Return(passages, nil).Once()

	reasoner := &fakeReasoner{verdict: aiVerdict(domain.RiskLow, 0.8, "ok")}
	svc := newTestService(t, reasoner, nil, func(deps *Dependencies, _ *domain.AssessmentConfig) {
		deps.Retriever = retriever
	})

	runSession(t, svc, StartRequest{Locale: "en"}, answerNone)

	retriever.AssertExpectations(t)
	require.Len(t, reasoner.context, 1)
	assert.Equal(t, passages, reasoner.context[0])
}

func TestAssessmentService_UnknownLocaleFallsBack(t *testing.T) {
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, nil, nil)

	start, err := svc.StartSession(context.Background(), StartRequest{Locale: "fr"})
	require.NoError(t, err)

	assert.Equal(t, "en", start.Locale)
	assert.NotEqual(t, "question.q.vaginal_bleeding", start.QuestionText)
}

func TestAssessmentService_ArabicSession(t *testing.T) {
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, nil, nil)

	start, a := runSession(t, svc, StartRequest{Locale: "ar-EG"},
		func(string) AnswerPayload { return AnswerPayload{FreeText: "لا"} })

	assert.Equal(t, "ar", start.Locale)
	assert.Equal(t, "ar", a.Locale)
	assert.Equal(t, domain.RiskLow, a.RiskLevel)
}

func TestAssessmentService_ReassuringFreeTextIsLow(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, store, nil)

	start, a := runSession(t, svc, StartRequest{Locale: "en"},
		func(string) AnswerPayload { return AnswerPayload{FreeText: "I am fine"} })

	assert.Equal(t, domain.RiskLow, a.RiskLevel)
	assert.Empty(t, a.ContributingRules)

	record, err := store.Get(context.Background(), start.SessionID)
	require.NoError(t, err)
	for _, e := range record.State.Entries {
		assert.Equal(t, domain.SeverityNone, e.Severity, e.QuestionID)
	}
}

func TestAssessmentService_InvalidGestationalWeek(t *testing.T) {
	svc := newTestService(t, &fakeReasoner{}, nil, nil)

	_, err := svc.StartSession(context.Background(), StartRequest{Locale: "en", GestationalWeek: domain.Int(60)})
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}

func TestAssessmentService_RejectedAnswerLeavesSessionUnchanged(t *testing.T) {
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, nil, nil)
	ctx := context.Background()

	start, err := svc.StartSession(ctx, StartRequest{Locale: "en"})
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(ctx, start.SessionID, start.QuestionID, AnswerPayload{})
	assert.True(t, domain.IsValidationError(err))

	_, err = svc.SubmitAnswer(ctx, start.SessionID, "q.nonexistent", AnswerPayload{Severity: "mild"})
	assert.True(t, domain.IsValidationError(err))

	_, err = svc.SubmitAnswer(ctx, start.SessionID, "q.fever", AnswerPayload{Severity: "mild"})
	assert.True(t, domain.IsValidationError(err), "a question never asked is not a correction")

	sess, ok := svc.sessions.Get(start.SessionID)
	require.True(t, ok)
	assert.Empty(t, sess.State.Entries)

	turn, err := svc.SubmitAnswer(ctx, start.SessionID, start.QuestionID, AnswerPayload{Severity: "none"})
	require.NoError(t, err)
	assert.Equal(t, "q.headache_vision", turn.NextQuestionID)
}

func TestAssessmentService_CorrectionKeepsPendingQuestion(t *testing.T) {
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, nil, nil)
	ctx := context.Background()

	start, err := svc.StartSession(ctx, StartRequest{Locale: "en"})
	require.NoError(t, err)
	turn, err := svc.SubmitAnswer(ctx, start.SessionID, start.QuestionID, AnswerPayload{Severity: "none"})
	require.NoError(t, err)

	corrected, err := svc.SubmitAnswer(ctx, start.SessionID, start.QuestionID, AnswerPayload{Severity: "moderate"})
	require.NoError(t, err)
	assert.Equal(t, turn.NextQuestionID, corrected.NextQuestionID)
	assert.False(t, corrected.Complete())

	sess, ok := svc.sessions.Get(start.SessionID)
	require.True(t, ok)
	assert.Equal(t, 1, sess.Selector.AnsweredCount())
	assert.Equal(t, domain.RiskHigh, sess.Selector.Verdict().RiskLevel)
}

func TestAssessmentService_SessionLifecycleErrors(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, store, nil)
	ctx := context.Background()

	_, err := svc.SubmitAnswer(ctx, "missing", "q.vaginal_bleeding", AnswerPayload{Severity: "mild"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = svc.GetAssessment(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrAssessmentNotFound)

	start, a := runSession(t, svc, StartRequest{Locale: "en"}, answerNone)

	_, err = svc.SubmitAnswer(ctx, start.SessionID, "q.vaginal_bleeding", AnswerPayload{Severity: "mild"})
	assert.ErrorIs(t, err, domain.ErrSessionComplete)

	got, err := svc.GetAssessment(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, *a, *got)

	assert.ErrorIs(t, svc.AbandonSession(ctx, start.SessionID), domain.ErrSessionNotFound)
}

func TestAssessmentService_GetAssessmentFromStore(t *testing.T) {
	store := newMemoryStore()
	first := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, store, nil)
	start, a := runSession(t, first, StartRequest{Locale: "en"}, answerNone)

	second := newTestService(t, &fakeReasoner{}, store, nil)
	got, err := second.GetAssessment(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, a.RiskLevel, got.RiskLevel)
	assert.Equal(t, a.RecommendationIDs, got.RecommendationIDs)
}

func TestAssessmentService_AbandonDiscardsSession(t *testing.T) {
	reasoner := &fakeReasoner{verdict: domain.UnavailableVerdict()}
	store := newMemoryStore()
	svc := newTestService(t, reasoner, store, nil)
	ctx := context.Background()

	start, err := svc.StartSession(ctx, StartRequest{Locale: "en", UserID: "user-2"})
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, start.SessionID, start.QuestionID, AnswerPayload{Severity: "severe"})
	require.NoError(t, err)

	require.NoError(t, svc.AbandonSession(ctx, start.SessionID))

	_, err = svc.SubmitAnswer(ctx, start.SessionID, "q.headache_vision", AnswerPayload{Severity: "none"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, reasoner.Calls())
}

func TestAssessmentService_AbandonWhileAnswerWaits(t *testing.T) {
	reasoner := &fakeReasoner{verdict: domain.UnavailableVerdict()}
	store := newMemoryStore()
	svc := newTestService(t, reasoner, store, nil)
	ctx := context.Background()

	start, err := svc.StartSession(ctx, StartRequest{Locale: "en"})
	require.NoError(t, err)

	// answer up to the minimum so the next answer would complete the session
	questionID := start.QuestionID
	for i := 0; i < defaultAssessmentConfig().MinQuestions-1; i++ {
		turn, err := svc.SubmitAnswer(ctx, start.SessionID, questionID, answerNone(questionID))
		require.NoError(t, err)
		require.False(t, turn.Complete())
		questionID = turn.NextQuestionID
	}

	sess, ok := svc.sessions.Get(start.SessionID)
	require.True(t, ok)

	sess.mu.Lock()
	submitted := make(chan error, 1)
	go func() {
		_, err := svc.SubmitAnswer(ctx, start.SessionID, questionID, answerNone(questionID))
		submitted <- err
	}()
	time.Sleep(20 * time.Millisecond)
	// what AbandonSession does once it holds the lock
	svc.sessions.Discard(sess)
	sess.mu.Unlock()

	select {
	case err := <-submitted:
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	case <-time.After(2 * time.Second):
		t.Fatal("answer never returned")
	}

	assert.ErrorIs(t, svc.AbandonSession(ctx, start.SessionID), domain.ErrSessionNotFound)
	_, err = svc.GetAssessment(ctx, start.SessionID)
	assert.ErrorIs(t, err, domain.ErrAssessmentNotFound)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, reasoner.Calls())
}

func TestAssessmentService_AbandonRacesAnswers(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, store, nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		start, err := svc.StartSession(ctx, StartRequest{Locale: "en"})
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			abandoned error
			completed bool
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			abandoned = svc.AbandonSession(ctx, start.SessionID)
		}()
		go func() {
			defer wg.Done()
			questionID := start.QuestionID
			for {
				turn, err := svc.SubmitAnswer(ctx, start.SessionID, questionID, answerNone(questionID))
				if err != nil {
					return
				}
				if turn.Complete() {
					completed = true
					return
				}
				questionID = turn.NextQuestionID
			}
		}()
		wg.Wait()

		// exactly one side wins
		if abandoned == nil {
			assert.False(t, completed)
		} else {
			assert.True(t, completed)
		}
	}

	assert.Equal(t, 0, svc.sessions.LiveCount())
}

func TestAssessmentService_InvalidAssessmentDiscardsSession(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, store, nil)
	svc.recommender = &RecommendationMapper{
		table:  map[domain.RiskLevel][]string{},
		locale: testLocale(t),
		logger: testLogger(),
	}
	ctx := context.Background()

	start, err := svc.StartSession(ctx, StartRequest{Locale: "en"})
	require.NoError(t, err)

	questionID := start.QuestionID
	var finishErr error
	for i := 0; i < 10 && finishErr == nil; i++ {
		var turn *TurnResult
		turn, finishErr = svc.SubmitAnswer(ctx, start.SessionID, questionID, answerNone(questionID))
		if finishErr == nil {
			require.False(t, turn.Complete())
			questionID = turn.NextQuestionID
		}
	}
	require.Error(t, finishErr)
	assert.Contains(t, finishErr.Error(), "recommendation")

	_, err = svc.SubmitAnswer(ctx, start.SessionID, questionID, answerNone(questionID))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, svc.AbandonSession(ctx, start.SessionID), domain.ErrSessionNotFound)
	assert.Equal(t, 0, svc.sessions.LiveCount())
	assert.Equal(t, 0, store.Len())
}

func TestAssessmentService_StoreFailureStillReturnsAssessment(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("disk full")
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, store, nil)

	_, a := runSession(t, svc, StartRequest{Locale: "en"}, answerNone)
	assert.Equal(t, domain.RiskLow, a.RiskLevel)
}

func TestAssessmentService_ReportWrittenAndRendered(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, nil, func(deps *Dependencies, _ *domain.AssessmentConfig) {
		deps.Renderer = fakeRenderer{}
		deps.ReportDir = dir
	})

	start, _ := runSession(t, svc, StartRequest{Locale: "en"}, answerNone)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Name(), start.SessionID)

	doc, contentType, err := svc.RenderReport(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.Equal(t, "%PDF-low", string(doc))
}

func TestAssessmentService_History(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, store, nil)
	since := time.Now().Add(-time.Hour)

	for i := 0; i < 2; i++ {
		runSession(t, svc, StartRequest{Locale: "en", UserID: "user-3"}, answerNone)
	}
	runSession(t, svc, StartRequest{Locale: "en", UserID: "someone-else"}, answerNone)

	history, err := svc.History(context.Background(), "user-3", since)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = svc.History(context.Background(), "", since)
	assert.True(t, domain.IsValidationError(err))
}

func TestAssessmentService_Summary(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(t, &fakeReasoner{verdict: domain.UnavailableVerdict()}, store, nil)

	runSession(t, svc, StartRequest{Locale: "en", UserID: "user-4"}, answerNone)
	runSession(t, svc, StartRequest{Locale: "en", UserID: "user-4"}, func(q string) AnswerPayload {
		if q == "q.vaginal_bleeding" {
			return AnswerPayload{Severity: "severe", DurationHours: domain.Float(3)}
		}
		return answerNone(q)
	})

	summary, err := svc.Summary(context.Background(), "user-4", 7)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, domain.RiskHigh, summary.Highest)
	assert.Equal(t, 1, summary.Counts[domain.RiskLow])
	require.NotEmpty(t, summary.FrequentRules)

	_, err = svc.Summary(context.Background(), "user-4", 0)
	assert.True(t, domain.IsValidationError(err))
}

func TestAssessmentService_ConcurrentSessions(t *testing.T) {
	store := newMemoryStore()
	reasoner := &fakeReasoner{verdict: aiVerdict(domain.RiskLow, 0.5, "fine"), delay: 5 * time.Millisecond}
	svc := newTestService(t, reasoner, store, nil)
	ctx := context.Background()

	const sessions = 20
	var wg sync.WaitGroup
	errs := make(chan error, sessions)

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start, err := svc.StartSession(ctx, StartRequest{Locale: "en", UserID: fmt.Sprintf("user-%d", i)})
			if err != nil {
				errs <- err
				return
			}
			questionID := start.QuestionID
			for {
				turn, err := svc.SubmitAnswer(ctx, start.SessionID, questionID, AnswerPayload{Severity: "none"})
				if err != nil {
					errs <- err
					return
				}
				if turn.Complete() {
					return
				}
				questionID = turn.NextQuestionID
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, sessions, store.Len())
	assert.Equal(t, sessions, reasoner.Calls())
	assert.Equal(t, 0, svc.sessions.LiveCount())
}

func TestNewAssessmentService_Validation(t *testing.T) {
	deps := Dependencies{Catalogue: testCatalogue(t), Locale: testLocale(t), Reasoner: &fakeReasoner{}}

	cfg := defaultAssessmentConfig()
	cfg.MaxQuestions = 1
	_, err := NewAssessmentService(deps, cfg, testLogger())
	assert.Error(t, err)

	cfg = defaultAssessmentConfig()
	cfg.ReasoningTimeout = 0
	_, err = NewAssessmentService(deps, cfg, testLogger())
	assert.Error(t, err)

	_, err = NewAssessmentService(Dependencies{}, defaultAssessmentConfig(), testLogger())
	assert.Error(t, err)
}
