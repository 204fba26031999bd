// Package mcp exposes the assessment service as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/domain"
	"github.com/gravilog-risk-core/internal/report"
	"github.com/gravilog-risk-core/internal/service"
)

// ServerName is the implementation name announced to MCP clients.
const ServerName = "gravilog-risk-core"

// ToolService is the part of the assessment service the tools use.
type ToolService interface {
	StartSession(ctx context.Context, req service.StartRequest) (*service.StartResult, error)
	SubmitAnswer(ctx context.Context, sessionID, questionID string, payload service.AnswerPayload) (*service.TurnResult, error)
	GetAssessment(ctx context.Context, sessionID string) (*domain.Assessment, error)
	Summary(ctx context.Context, userID string, days int) (report.Summary, error)
}

// TextSource resolves display text for tool results.
type TextSource interface {
	ResolveText(key, locale string) string
	IsRTL(locale string) bool
}

// Server represents the MCP server
type Server struct {
	mcpServer *mcp.Server
	service   ToolService
	texts     TextSource
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance with every tool registered.
func NewServer(svc ToolService, texts TextSource, version string, logger *logrus.Logger) *Server {
	serverInfo := &mcp.Implementation{
		Name:    ServerName,
		Version: version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		service:   svc,
		texts:     texts,
		logger:    logger,
	}
	s.registerTools()
	return s
}

// registerTools registers the assessment tools with the MCP SDK.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "start_session",
		Description: "Start a pregnancy symptom risk assessment. Returns the session id and the first question. locale is en or ar; gestational_week is optional (1-45).",
	}, s.handleStartSession)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "submit_answer",
		Description: "Answer the pending question of a session with a severity (none, mild, moderate, severe) and/or the patient's own words. Returns the next question or the final assessment.",
	}, s.handleSubmitAnswer)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_assessment",
		Description: "Get the final risk assessment of a completed session, with explanation and recommendations.",
	}, s.handleGetAssessment)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "weekly_summary",
		Description: "Summarize a user's assessments over the last days (default 7): counts per risk level, highest level and most frequent findings.",
	}, s.handleWeeklySummary)

	s.logger.WithField("tool_count", 4).Debug("Registered MCP tools")
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
