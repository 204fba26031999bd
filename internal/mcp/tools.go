package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/domain"
	"github.com/gravilog-risk-core/internal/service"
)

// StartSessionParams defines parameters for the start_session tool
type StartSessionParams struct {
	Locale          string `json:"locale,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	GestationalWeek *int   `json:"gestational_week,omitempty"`
}

// SubmitAnswerParams defines parameters for the submit_answer tool
type SubmitAnswerParams struct {
	SessionID     string   `json:"session_id"`
	QuestionID    string   `json:"question_id"`
	Severity      string   `json:"severity,omitempty"`
	DurationHours *float64 `json:"duration_hours,omitempty"`
	Answer        string   `json:"answer,omitempty"`
}

// GetAssessmentParams defines parameters for the get_assessment tool
type GetAssessmentParams struct {
	SessionID string `json:"session_id"`
}

// WeeklySummaryParams defines parameters for the weekly_summary tool
type WeeklySummaryParams struct {
	UserID string `json:"user_id"`
	Days   int    `json:"days,omitempty"`
	Locale string `json:"locale,omitempty"`
}

func (s *Server) handleStartSession(ctx context.Context, req *mcp.CallToolRequest, params StartSessionParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "start_session").Info("Tool invoked")

	result, err := s.service.StartSession(ctx, service.StartRequest{
		Locale:          params.Locale,
		UserID:          params.UserID,
		GestationalWeek: params.GestationalWeek,
	})
	if err != nil {
		return s.createErrorResult("could not start session", err), nil, nil
	}

	text := fmt.Sprintf("%s\n\n%s", result.Greeting, result.QuestionText)
	return s.createResult(text, result), nil, nil
}

func (s *Server) handleSubmitAnswer(ctx context.Context, req *mcp.CallToolRequest, params SubmitAnswerParams) (*mcp.CallToolResult, any, error) {
	logger := s.logger.WithFields(logrus.Fields{"tool": "submit_answer", "session_id": params.SessionID})
	logger.Info("Tool invoked")

	if params.SessionID == "" || params.QuestionID == "" {
		return s.createErrorResult("missing required parameter", fmt.Errorf("session_id and question_id are required")), nil, nil
	}

	turn, err := s.service.SubmitAnswer(ctx, params.SessionID, params.QuestionID, service.AnswerPayload{
		Severity:      params.Severity,
		DurationHours: params.DurationHours,
		FreeText:      params.Answer,
	})
	if err != nil {
		return s.createErrorResult("answer not accepted", err), nil, nil
	}

	if turn.Assessment == nil {
		return s.createResult(turn.QuestionText, turn), nil, nil
	}
	return s.createResult(s.assessmentText(*turn.Assessment), turn), nil, nil
}

func (s *Server) handleGetAssessment(ctx context.Context, req *mcp.CallToolRequest, params GetAssessmentParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": "get_assessment", "session_id": params.SessionID}).Info("Tool invoked")

	if params.SessionID == "" {
		return s.createErrorResult("missing required parameter", fmt.Errorf("session_id is required")), nil, nil
	}
	a, err := s.service.GetAssessment(ctx, params.SessionID)
	if err != nil {
		return s.createErrorResult("assessment not available", err), nil, nil
	}
	return s.createResult(s.assessmentText(*a), a), nil, nil
}

func (s *Server) handleWeeklySummary(ctx context.Context, req *mcp.CallToolRequest, params WeeklySummaryParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "weekly_summary").Info("Tool invoked")

	days := params.Days
	if days == 0 {
		days = 7
	}
	summary, err := s.service.Summary(ctx, params.UserID, days)
	if err != nil {
		return s.createErrorResult("could not build summary", err), nil, nil
	}
	locale := params.Locale
	if locale == "" {
		locale = "en"
	}
	return s.createResult(summary.Text(s.texts, locale), summary), nil, nil
}

// assessmentText renders the assessment for a chat client in its own locale.
func (s *Server) assessmentText(a domain.Assessment) string {
	t := func(key string) string { return s.texts.ResolveText(key, a.Locale) }

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n\n", t("report.risk_level"), t("label.risk."+string(a.RiskLevel)))
	b.WriteString(a.Explanation)
	b.WriteString("\n\n")
	b.WriteString(t("report.recommendations"))
	b.WriteString(":\n")
	for i, id := range a.RecommendationIDs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t(id))
	}
	b.WriteString("\n")
	b.WriteString(t("disclaimer"))
	return b.String()
}

// createResult returns the display text followed by the structured data as JSON.
func (s *Server) createResult(text string, data any) *mcp.CallToolResult {
	content := []mcp.Content{&mcp.TextContent{Text: text}}
	if raw, err := json.MarshalIndent(data, "", "  "); err == nil {
		content = append(content, &mcp.TextContent{Text: string(raw)})
	} else {
		s.logger.WithError(err).Warn("Failed to encode tool result")
	}
	return &mcp.CallToolResult{Content: content}
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
		switch domain.ErrorCode(err) {
		case domain.CodeInternalServer, domain.CodeStorage, domain.CodeRender:
			s.logger.WithError(err).Error("Tool call failed")
			errorText = fmt.Sprintf("Error: %s", message)
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
