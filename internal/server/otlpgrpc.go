package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/arisu-ai/arisu/internal/auth"
	"github.com/arisu-ai/arisu/internal/ingest"
	"github.com/arisu-ai/arisu/internal/storage"
)

// OTLPServer is the OTLP/gRPC trace receiver. It shares the batch processor
// with the HTTP ingest path, so both surfaces have identical semantics.
type OTLPServer struct {
	coltracepb.UnimplementedTraceServiceServer
	db        *storage.DB
	jwtMgr    *auth.JWTManager
	processor *ingest.Processor
	logger    *slog.Logger
	grpc      *grpc.Server
	port      int
}

// NewOTLPServer creates the gRPC receiver on the given port.
func NewOTLPServer(db *storage.DB, jwtMgr *auth.JWTManager, processor *ingest.Processor, logger *slog.Logger, port int) *OTLPServer {
	s := &OTLPServer{
		db:        db,
		jwtMgr:    jwtMgr,
		processor: processor,
		logger:    logger,
		port:      port,
	}
	s.grpc = grpc.NewServer()
	coltracepb.RegisterTraceServiceServer(s.grpc, s)
	return s
}

// Export implements the OTLP trace service. Authentication uses the standard
// authorization metadata key with a Bearer JWT, the same token the HTTP API
// issues at /auth/token.
func (s *OTLPServer) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	claims, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	spans, err := ingest.SpansFromExportRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed span payload")
	}
	if len(spans) == 0 {
		// OTLP allows empty exports; acknowledge without touching storage.
		return &coltracepb.ExportTraceServiceResponse{}, nil
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		s.logger.Error("otlp export begin tx failed", "error", err)
		return nil, status.Error(codes.Unavailable, "storage unavailable")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := s.processor.Process(ctx, tx, claims.ProjectID, spans)
	if err != nil {
		if errors.Is(err, ingest.ErrNoProject) {
			return nil, status.Error(codes.Unauthenticated, "no project scope")
		}
		s.logger.Error("otlp export processing failed", "error", err)
		return nil, status.Error(codes.Internal, "failed to process span batch")
	}
	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("otlp export commit failed", "error", err)
		return nil, status.Error(codes.Unavailable, "storage unavailable")
	}

	s.logger.Debug("otlp export processed",
		"project_id", claims.ProjectID,
		"stored", res.Stored,
		"created", res.Created,
		"recomputed", res.Recomputed,
	)
	return &coltracepb.ExportTraceServiceResponse{}, nil
}

func (s *OTLPServer) authenticate(ctx context.Context) (*auth.Claims, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing authorization")
	}
	parts := strings.SplitN(values[0], " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, status.Error(codes.Unauthenticated, "invalid authorization format")
	}
	claims, err := s.jwtMgr.ValidateToken(parts[1])
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return claims, nil
}

// Start begins serving gRPC requests. Blocks until Stop is called.
func (s *OTLPServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("server: otlp grpc listen: %w", err)
	}
	s.logger.Info("otlp grpc server starting", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop drains in-flight RPCs and shuts the gRPC server down.
func (s *OTLPServer) Stop() {
	s.logger.Info("otlp grpc server shutting down")
	s.grpc.GracefulStop()
}
