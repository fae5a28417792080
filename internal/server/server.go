package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/arisu-ai/arisu/internal/auth"
	"github.com/arisu-ai/arisu/internal/ingest"
	"github.com/arisu-ai/arisu/internal/storage"
)

// Server is the Arisu HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// MCPServer is optional (nil = disabled).
type ServerConfig struct {
	DB        *storage.DB
	JWTMgr    *auth.JWTManager
	Processor *ingest.Processor
	Logger    *slog.Logger
	MCPServer *mcpserver.MCPServer

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		Processor:           cfg.Processor,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Auth (no auth required).
	mux.HandleFunc("POST /auth/token", h.HandleAuthToken)

	// Ingestion. Both routes share one handler; the decoder dispatches on
	// Content-Type.
	mux.HandleFunc("POST /v1/traces", h.HandleIngest)
	mux.HandleFunc("POST /v1/spans", h.HandleIngest)

	// Query.
	mux.HandleFunc("GET /v1/traces/{trace_id}", h.HandleGetTrace)
	mux.HandleFunc("DELETE /v1/traces/{trace_id}", h.HandleDeleteTrace)
	mux.HandleFunc("GET /v1/traces/{trace_id}/messages", h.HandleGetTraceMessages)
	mux.HandleFunc("GET /v1/traces/{trace_id}/tools", h.HandleGetTraceTools)
	mux.HandleFunc("GET /v1/traces/{trace_id}/templates", h.HandleGetTraceTemplates)
	mux.HandleFunc("GET /v1/executions", h.HandleListExecutions)

	// MCP StreamableHTTP transport (auth required).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no auth).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers for use in tests.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
