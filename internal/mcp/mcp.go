// Package mcp implements the Model Context Protocol server for Arisu.
//
// The MCP server exposes read-only views over reconstructed executions so
// MCP-compatible AI agents can inspect their own (or other agents') traced
// behavior: what ran, what it cost, which tools were invoked.
package mcp

import (
	"context"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/google/uuid"

	"github.com/arisu-ai/arisu/internal/storage"
)

// ProjectResolver extracts the authenticated project scope from a request
// context. The HTTP transport layer installs the claims; this keeps the MCP
// package decoupled from how they got there.
type ProjectResolver func(ctx context.Context) uuid.UUID

// Server wraps the MCP server with Arisu's storage layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	db        *storage.DB
	projectFn ProjectResolver
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(db *storage.DB, projectFn ProjectResolver, logger *slog.Logger) *Server {
	s := &Server{
		db:        db,
		projectFn: projectFn,
		logger:    logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"arisu",
		"0.1.0",
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
