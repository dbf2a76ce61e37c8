// Package mcp implements the Model Context Protocol server for Karte.
//
// The MCP server exposes the analysis and tumor board capabilities of the
// HTTP API through MCP tools and resources, so MCP-compatible AI agents can
// queue document analysis and read board-ready views for the hospital they
// are authenticated as. It is mounted on the HTTP server at /mcp behind the
// same bearer-token middleware as the REST routes; handlers read the
// hospital claims from the request context via ctxutil.
package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/chartmed-ai/karte/internal/auth"
	"github.com/chartmed-ai/karte/internal/authz"
	"github.com/chartmed-ai/karte/internal/ctxutil"
	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
)

// activityWriteTimeout bounds best-effort activity writes from tool handlers.
const activityWriteTimeout = 5 * time.Second

// Server wraps the MCP server with Karte's storage layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	db        *storage.DB
	owners    *authz.OwnerCache
	logger    *slog.Logger

	secondsPerReport int
}

// New creates and configures a new MCP server with all tools, resources and
// prompts. secondsPerReport sizes the completion estimate reported when an
// analysis is queued.
func New(db *storage.DB, owners *authz.OwnerCache, secondsPerReport int, logger *slog.Logger, version string) *Server {
	if secondsPerReport <= 0 {
		secondsPerReport = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		db:               db,
		owners:           owners,
		logger:           logger,
		secondsPerReport: secondsPerReport,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"karte",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// requireClaims extracts the hospital claims the auth middleware stored on
// the request context. Tool handlers refuse to run without them.
func requireClaims(ctx context.Context) (*auth.Claims, *mcplib.CallToolResult) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return nil, errorResult("not authenticated")
	}
	return claims, nil
}

// recordActivity writes an audit entry on behalf of the authenticated
// hospital. Failures are logged and swallowed; the tool call itself has
// already succeeded.
func (s *Server) recordActivity(ctx context.Context, claims *auth.Claims, action, entityType string, entityID uuid.UUID, description string) {
	idStr := entityID.String()
	entry := model.ActivityEntry{
		HospitalID:  claims.HospitalID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    &idStr,
		Description: description,
		PerformedBy: &claims.Email,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), activityWriteTimeout)
	defer cancel()
	if err := s.db.InsertActivity(writeCtx, entry); err != nil {
		s.logger.Warn("mcp: activity log write failed",
			"action", action,
			"entity_type", entityType,
			"entity_id", idStr,
			"error", err,
		)
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
