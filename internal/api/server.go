// Package api exposes the assessment service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/domain"
	"github.com/gravilog-risk-core/internal/middleware"
	"github.com/gravilog-risk-core/internal/report"
	"github.com/gravilog-risk-core/internal/service"
)

// Version is reported by the health endpoint.
var Version = "dev"

const defaultSummaryDays = 7

// Assessor is the part of the assessment service the HTTP surface uses.
type Assessor interface {
	StartSession(ctx context.Context, req service.StartRequest) (*service.StartResult, error)
	SubmitAnswer(ctx context.Context, sessionID, questionID string, payload service.AnswerPayload) (*service.TurnResult, error)
	GetAssessment(ctx context.Context, sessionID string) (*domain.Assessment, error)
	AbandonSession(ctx context.Context, sessionID string) error
	RenderReport(ctx context.Context, sessionID string) ([]byte, string, error)
	Summary(ctx context.Context, userID string, days int) (report.Summary, error)
}

// HealthCheck reports the health of one dependency.
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP server
type Server struct {
	config  domain.ServerConfig
	service Assessor
	texts   domain.LocaleProvider
	checks  map[string]HealthCheck
	router  *gin.Engine
	server  *http.Server
	logger  *logrus.Logger
}

// AnswerRequest is the body of POST /sessions/:id/answers.
type AnswerRequest struct {
	QuestionID    string   `json:"question_id" binding:"required"`
	Severity      string   `json:"severity,omitempty"`
	DurationHours *float64 `json:"duration_hours,omitempty"`
	FreeText      string   `json:"free_text,omitempty"`
}

// AssessmentResponse is an assessment with its display text resolved.
type AssessmentResponse struct {
	domain.Assessment
	RiskLabel       string   `json:"risk_label"`
	Recommendations []string `json:"recommendations"`
}

// TurnResponse is the result of one answer.
type TurnResponse struct {
	SessionID      string              `json:"session_id"`
	Complete       bool                `json:"complete"`
	NextQuestionID string              `json:"next_question_id,omitempty"`
	QuestionText   string              `json:"question_text,omitempty"`
	Assessment     *AssessmentResponse `json:"assessment,omitempty"`
}

// NewServer creates a new HTTP server instance
func NewServer(config domain.ServerConfig, svc Assessor, texts domain.LocaleProvider, checks map[string]HealthCheck, logger *logrus.Logger) *Server {
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(config.AllowedOrigins))
	if config.WriteTimeout > 0 {
		router.Use(middleware.RequestTimeout(config.WriteTimeout))
	}

	s := &Server{
		config:  config,
		service: svc,
		texts:   texts,
		checks:  checks,
		router:  router,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/sessions", s.handleStartSession)
		v1.POST("/sessions/:id/answers", s.handleSubmitAnswer)
		v1.GET("/sessions/:id/assessment", s.handleGetAssessment)
		v1.DELETE("/sessions/:id", s.handleAbandonSession)
		v1.GET("/sessions/:id/report", s.handleReport)
		v1.GET("/users/:userId/summary", s.handleSummary)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(c.Request.Context()); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().UTC(),
		"version":    Version,
	})
}

func (s *Server) handleStartSession(c *gin.Context) {
	var req service.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidInput(c, err)
		return
	}
	result, err := s.service.StartSession(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleSubmitAnswer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidInput(c, err)
		return
	}
	turn, err := s.service.SubmitAnswer(c.Request.Context(), c.Param("id"), req.QuestionID, service.AnswerPayload{
		Severity:      req.Severity,
		DurationHours: req.DurationHours,
		FreeText:      req.FreeText,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := TurnResponse{
		SessionID:      turn.SessionID,
		Complete:       turn.Complete(),
		NextQuestionID: turn.NextQuestionID,
		QuestionText:   turn.QuestionText,
	}
	if turn.Assessment != nil {
		a := s.present(*turn.Assessment)
		resp.Assessment = &a
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetAssessment(c *gin.Context) {
	a, err := s.service.GetAssessment(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.present(*a))
}

func (s *Server) handleAbandonSession(c *gin.Context) {
	if err := s.service.AbandonSession(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReport(c *gin.Context) {
	id := c.Param("id")
	doc, contentType, err := s.service.RenderReport(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="assessment_%s.pdf"`, id))
	c.Data(http.StatusOK, contentType, doc)
}

func (s *Server) handleSummary(c *gin.Context) {
	days := defaultSummaryDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.invalidInput(c, fmt.Errorf("days must be an integer: %w", err))
			return
		}
		days = n
	}
	summary, err := s.service.Summary(c.Request.Context(), c.Param("userId"), days)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// present resolves the display text of an assessment in its own locale.
func (s *Server) present(a domain.Assessment) AssessmentResponse {
	recs := make([]string, 0, len(a.RecommendationIDs))
	for _, id := range a.RecommendationIDs {
		recs = append(recs, s.texts.ResolveText(id, a.Locale))
	}
	return AssessmentResponse{
		Assessment:      a,
		RiskLabel:       s.texts.ResolveText("label.risk."+string(a.RiskLevel), a.Locale),
		Recommendations: recs,
	}
}

func (s *Server) invalidInput(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, domain.NewServiceError(
		domain.CodeInvalidInput, "invalid request body", err.Error(), c.GetString(middleware.CorrelationIDKey)))
}

// writeError maps service errors to HTTP statuses. Internal details are logged,
// not returned.
func (s *Server) writeError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)
	code := domain.ErrorCode(err)

	status := http.StatusInternalServerError
	message := "internal server error"
	details := ""
	switch code {
	case domain.CodeValidation:
		status, message, details = http.StatusBadRequest, "validation failed", err.Error()
	case domain.CodeNotFound:
		status, message = http.StatusNotFound, err.Error()
	case domain.CodeConflict:
		status, message = http.StatusConflict, err.Error()
	case domain.CodeStorage:
		status, message = http.StatusServiceUnavailable, "assessment storage unavailable"
		s.logger.WithError(err).WithField("correlation_id", requestID).Error("Storage request failed")
	case domain.CodeRender:
		status, message = http.StatusServiceUnavailable, "report unavailable"
		s.logger.WithError(err).WithField("correlation_id", requestID).Error("Report request failed")
	default:
		s.logger.WithError(err).WithField("correlation_id", requestID).Error("Request failed")
	}

	c.JSON(status, domain.NewServiceError(code, message, details, requestID))
}
