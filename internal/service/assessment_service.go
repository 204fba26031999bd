package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/catalogue"
	"github.com/gravilog-risk-core/internal/domain"
	"github.com/gravilog-risk-core/internal/report"
)

// persistTimeout bounds the storage, audit and report hand-offs after a session ends.
const persistTimeout = 30 * time.Second

const maxSummaryDays = 366

// Dependencies are the collaborators of the assessment service. Store, Audit and
// Renderer are optional.
type Dependencies struct {
	Catalogue *catalogue.Catalogue
	Locale    domain.LocaleProvider
	Reasoner  domain.Reasoner
	Retriever domain.KnowledgeRetriever
	Store     domain.AssessmentStore
	Audit     domain.AuditTrail
	Renderer  domain.ReportRenderer
	ReportDir string
}

// StartRequest opens a session.
type StartRequest struct {
	Locale          string `json:"locale"`
	UserID          string `json:"user_id,omitempty"`
	GestationalWeek *int   `json:"gestational_week,omitempty"`
}

// StartResult carries the new session and its first question.
type StartResult struct {
	SessionID    string `json:"session_id"`
	Locale       string `json:"locale"`
	Greeting     string `json:"greeting"`
	QuestionID   string `json:"question_id"`
	QuestionText string `json:"question_text"`
}

// TurnResult is either the next question or the final assessment.
type TurnResult struct {
	SessionID      string             `json:"session_id"`
	NextQuestionID string             `json:"next_question_id,omitempty"`
	QuestionText   string             `json:"question_text,omitempty"`
	Assessment     *domain.Assessment `json:"assessment,omitempty"`
}

// Complete reports whether the turn ended the session.
func (r *TurnResult) Complete() bool {
	return r.Assessment != nil
}

// AssessmentService runs assessment sessions: it owns the session store and
// drives the selector, the terminal evaluation and the hand-off to collaborators.
type AssessmentService struct {
	engine      *RuleEngine
	policy      SelectorPolicy
	parser      *AnswerParser
	fusion      *FusionArbiter
	recommender *RecommendationMapper
	deps        Dependencies
	sessions    *SessionStore
	timeout     time.Duration
	logger      *logrus.Logger
}

// NewAssessmentService creates a new assessment service
func NewAssessmentService(deps Dependencies, cfg domain.AssessmentConfig, logger *logrus.Logger) (*AssessmentService, error) {
	if deps.Catalogue == nil || deps.Locale == nil || deps.Reasoner == nil {
		return nil, errors.New("catalogue, locale provider and reasoner are required")
	}
	policy := SelectorPolicy{MinQuestions: cfg.MinQuestions, MaxQuestions: cfg.MaxQuestions}
	if err := policy.Validate(deps.Catalogue); err != nil {
		return nil, fmt.Errorf("invalid question policy: %w", err)
	}
	if cfg.ReasoningTimeout <= 0 {
		return nil, fmt.Errorf("reasoning timeout must be positive, got %s", cfg.ReasoningTimeout)
	}

	engine := NewRuleEngine(deps.Catalogue, logger)
	return &AssessmentService{
		engine:      engine,
		policy:      policy,
		parser:      NewAnswerParser(),
		fusion:      NewFusionArbiter(deps.Catalogue, deps.Locale, logger),
		recommender: NewRecommendationMapper(deps.Locale, logger),
		deps:        deps,
		sessions:    NewSessionStore(cfg.SessionTTL, cfg.CompletedTTL, logger),
		timeout:     cfg.ReasoningTimeout,
		logger:      logger,
	}, nil
}

// StartSession opens a session and returns its first question.
func (s *AssessmentService) StartSession(ctx context.Context, req StartRequest) (*StartResult, error) {
	if err := domain.ValidateGestationalWeek(req.GestationalWeek); err != nil {
		return nil, err
	}

	locale, ok := s.deps.Locale.Normalize(req.Locale)
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"locale":   req.Locale,
			"fallback": s.deps.Locale.DefaultLocale(),
		}).Warn("Unknown locale requested, falling back to default")
		locale = s.deps.Locale.DefaultLocale()
	}

	id := uuid.NewString()
	state := domain.NewSymptomState(id, req.UserID, locale, req.GestationalWeek)
	selector := NewQuestionSelector(s.engine, s.policy)

	decision, err := selector.Next(state)
	if err != nil {
		return nil, fmt.Errorf("choosing opening question: %w", err)
	}
	if decision.Terminate {
		return nil, fmt.Errorf("choosing opening question: %w", domain.ErrCatalogueExhausted)
	}

	s.sessions.Put(&Session{ID: id, State: state, Selector: selector, CreatedAt: time.Now().UTC()})

	s.logger.WithFields(logrus.Fields{
		"session_id":  id,
		"locale":      locale,
		"question_id": decision.QuestionID,
	}).Info("Started assessment session")

	return &StartResult{
		SessionID:    id,
		Locale:       locale,
		Greeting:     s.deps.Locale.ResolveText("greeting", locale),
		QuestionID:   decision.QuestionID,
		QuestionText: s.questionText(decision.QuestionID, locale),
	}, nil
}

// SubmitAnswer records an answer and returns the next question or, once the
// selector terminates, the final assessment. A rejected answer leaves the
// session unchanged.
func (s *AssessmentService) SubmitAnswer(ctx context.Context, sessionID, questionID string, payload AnswerPayload) (*TurnResult, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		if _, done := s.sessions.Completed(sessionID); done {
			return nil, domain.ErrSessionComplete
		}
		return nil, domain.ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	// the session may have been abandoned while this turn waited for the lock
	if sess.discarded {
		return nil, domain.ErrSessionNotFound
	}
	if sess.Selector.State() == StateDone {
		return nil, domain.ErrSessionComplete
	}

	q, ok := s.deps.Catalogue.Question(questionID)
	if !ok {
		return nil, domain.NewValidationError("question_id", "unknown question", questionID)
	}
	entry, err := s.parser.Parse(q, payload)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"session_id":  sessionID,
		"question_id": questionID,
		"severity":    entry.Severity,
	})

	pending, awaiting := sess.Selector.Pending()
	if !awaiting || pending.ID != questionID {
		if err := sess.Selector.Correct(sess.State, entry); err != nil {
			return nil, err
		}
		logger.Info("Recorded corrected answer")
		return &TurnResult{
			SessionID:      sessionID,
			NextQuestionID: pending.ID,
			QuestionText:   s.questionText(pending.ID, sess.State.Locale),
		}, nil
	}

	if err := sess.Selector.Answer(sess.State, entry); err != nil {
		return nil, err
	}
	logger.WithField("risk_level", sess.Selector.Verdict().RiskLevel).Debug("Recorded answer")

	decision, err := sess.Selector.Next(sess.State)
	if err != nil {
		return nil, fmt.Errorf("selecting next question: %w", err)
	}
	if !decision.Terminate {
		return &TurnResult{
			SessionID:      sessionID,
			NextQuestionID: decision.QuestionID,
			QuestionText:   s.questionText(decision.QuestionID, sess.State.Locale),
		}, nil
	}

	if decision.Reason == ReasonCatalogueExhausted {
		logger.WithError(domain.ErrCatalogueExhausted).Warn("Question catalogue exhausted, terminating")
	}

	assessment, err := s.finish(ctx, sess, decision.Reason)
	if err != nil {
		return nil, err
	}
	return &TurnResult{SessionID: sessionID, Assessment: &assessment}, nil
}

// GetAssessment returns the assessment of a finished session.
func (s *AssessmentService) GetAssessment(ctx context.Context, sessionID string) (*domain.Assessment, error) {
	if a, ok := s.sessions.Completed(sessionID); ok {
		return &a, nil
	}
	if s.deps.Store == nil {
		return nil, domain.ErrAssessmentNotFound
	}
	record, err := s.deps.Store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrAssessmentNotFound) {
			return nil, domain.ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("loading assessment: %w: %w", domain.ErrStorage, err)
	}
	a := record.Assessment.Clone()
	return &a, nil
}

// AbandonSession drops a live session. Its answers are discarded and nothing is persisted.
func (s *AssessmentService) AbandonSession(ctx context.Context, sessionID string) error {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.discarded {
		return domain.ErrSessionNotFound
	}
	if sess.Selector.State() == StateDone {
		return domain.ErrSessionComplete
	}
	s.sessions.Discard(sess)
	s.logger.WithField("session_id", sessionID).Info("Abandoned assessment session")
	return nil
}

// RenderReport renders the assessment of a finished session.
func (s *AssessmentService) RenderReport(ctx context.Context, sessionID string) ([]byte, string, error) {
	if s.deps.Renderer == nil {
		return nil, "", fmt.Errorf("%w: no report renderer configured", domain.ErrRender)
	}
	a, err := s.GetAssessment(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	doc, err := s.deps.Renderer.Render(*a)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrRender, err)
	}
	return doc, s.deps.Renderer.ContentType(), nil
}

// History returns the stored assessments of a user since a point in time.
func (s *AssessmentService) History(ctx context.Context, userID string, since time.Time) ([]domain.Assessment, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "user id is required", userID)
	}
	if s.deps.Store == nil {
		return []domain.Assessment{}, nil
	}
	history, err := s.deps.Store.ListByUser(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("listing assessments: %w: %w", domain.ErrStorage, err)
	}
	return history, nil
}

// Summary aggregates a user's assessments over the last days days.
func (s *AssessmentService) Summary(ctx context.Context, userID string, days int) (report.Summary, error) {
	if days < 1 || days > maxSummaryDays {
		return report.Summary{}, domain.NewValidationError("days", fmt.Sprintf("must be between 1 and %d", maxSummaryDays), days)
	}
	until := time.Now().UTC()
	since := until.AddDate(0, 0, -days)
	history, err := s.History(ctx, userID, since)
	if err != nil {
		return report.Summary{}, err
	}
	return report.Summarize(userID, history, since, until, report.DefaultFrequentRules), nil
}

// questionText resolves the text of a question in a locale.
func (s *AssessmentService) questionText(questionID, locale string) string {
	q, ok := s.deps.Catalogue.Question(questionID)
	if !ok {
		return questionID
	}
	return s.deps.Locale.ResolveText(q.TextKey(), locale)
}

// finish runs the terminal evaluation and hands the assessment off. It is called
// with the session lock held.
func (s *AssessmentService) finish(ctx context.Context, sess *Session, reason TerminationReason) (domain.Assessment, error) {
	snapshot := sess.State.Snapshot()
	rule, ai := s.evaluate(ctx, snapshot)

	assessment := s.fusion.Fuse(rule, ai, snapshot.Locale)
	assessment.SessionID = sess.ID
	assessment.UserID = snapshot.UserID
	assessment.QuestionCount = sess.Selector.AnsweredCount()
	assessment.RecommendationIDs = s.recommender.Map(assessment.RiskLevel, snapshot.Locale)

	if err := assessment.Validate(); err != nil {
		s.sessions.Discard(sess)
		s.logger.WithField("session_id", sess.ID).WithError(err).Error("Discarded session with an invalid assessment")
		return domain.Assessment{}, fmt.Errorf("building assessment: %w", err)
	}
	if err := sess.Selector.Complete(); err != nil {
		return domain.Assessment{}, err
	}
	s.sessions.Complete(sess.ID, assessment)

	fields := logrus.Fields(assessment.LogFields())
	fields["termination_reason"] = reason
	s.logger.WithFields(fields).Info("Assessment completed")

	s.handOff(ctx, assessment.Clone(), snapshot)
	return assessment, nil
}

// evaluate runs the rule engine and the reasoning client against the same
// snapshot and waits for both. A reasoning reply that misses the deadline is
// replaced by an unavailable verdict.
func (s *AssessmentService) evaluate(ctx context.Context, snapshot *domain.SymptomState) (domain.RuleVerdict, domain.AIVerdict) {
	aiCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make(chan domain.AIVerdict, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithField("panic", r).Error("Reasoning client panicked")
				results <- domain.UnavailableVerdict()
			}
		}()
		results <- s.deps.Reasoner.Assess(aiCtx, snapshot, s.retrieve(aiCtx, snapshot))
	}()

	rule := s.engine.Evaluate(snapshot)

	var ai domain.AIVerdict
	select {
	case ai = <-results:
	case <-aiCtx.Done():
		s.logger.WithFields(logrus.Fields{
			"session_id": snapshot.SessionID,
			"timeout":    s.timeout.String(),
		}).WithError(domain.ErrReasoningUnavailable).Warn("Reasoning verdict did not arrive in time")
		ai = domain.UnavailableVerdict()
	}

	return rule, ai.Resolve(rule.RiskLevel)
}

func (s *AssessmentService) retrieve(ctx context.Context, snapshot *domain.SymptomState) []domain.Passage {
	if s.deps.Retriever == nil {
		return nil
	}
	passages, err := s.deps.Retriever.Retrieve(ctx, snapshot)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", snapshot.SessionID).Warn("Knowledge retrieval failed, continuing without context")
		return nil
	}
	return passages
}

// handOff persists the assessment, the audit trail and the rendered report.
// Failures are logged; the caller already holds a verdict.
func (s *AssessmentService) handOff(ctx context.Context, assessment domain.Assessment, snapshot *domain.SymptomState) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	logger := s.logger.WithField("session_id", assessment.SessionID)

	if s.deps.Store != nil {
		record := &domain.AssessmentRecord{Assessment: assessment, State: snapshot}
		if err := s.deps.Store.Append(ctx, record); err != nil {
			logger.WithError(err).Error("Failed to persist assessment")
		}
	}

	if s.deps.Audit != nil {
		if err := s.deps.Audit.SaveTrail(ctx, snapshot); err != nil {
			logger.WithError(err).Error("Failed to write symptom audit trail")
		}
	}

	if s.deps.Renderer != nil && s.deps.ReportDir != "" {
		if err := s.writeReport(assessment); err != nil {
			logger.WithError(err).Error("Failed to write assessment report")
		}
	}
}

func (s *AssessmentService) writeReport(assessment domain.Assessment) error {
	doc, err := s.deps.Renderer.Render(assessment)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.deps.ReportDir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	name := fmt.Sprintf("assessment_%s_%s.pdf", assessment.SessionID, assessment.CreatedAt.Format("20060102T150405"))
	return os.WriteFile(filepath.Join(s.deps.ReportDir, name), doc, 0o644)
}
