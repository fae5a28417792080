package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/arisu-ai/arisu/internal/auth"
	"github.com/arisu-ai/arisu/internal/config"
	"github.com/arisu-ai/arisu/internal/ingest"
	"github.com/arisu-ai/arisu/internal/mcp"
	"github.com/arisu-ai/arisu/internal/model"
	"github.com/arisu-ai/arisu/internal/pricing"
	"github.com/arisu-ai/arisu/internal/server"
	"github.com/arisu-ai/arisu/internal/storage"
	"github.com/arisu-ai/arisu/internal/telemetry"
	"github.com/arisu-ai/arisu/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("ARISU_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("arisu starting", "version", version, "port", cfg.Port, "grpc_port", cfg.GRPCPort)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database and apply migrations.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Seed the bootstrap project and API key.
	if err := seedBootstrap(ctx, db, cfg, logger); err != nil {
		slog.Warn("bootstrap seed failed", "error", err)
	}

	// Ingestion core (shared by HTTP, gRPC, and tests).
	extractor := ingest.NewExtractor(pricing.NewTable(), logger)
	processor := ingest.NewProcessor(extractor, logger)

	// MCP server, mounted at /mcp on the HTTP listener.
	mcpSrv := mcp.New(db, server.ProjectIDFromContext, logger)

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Processor:           processor,
		Logger:              logger,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	var otlpSrv *server.OTLPServer
	if cfg.GRPCPort > 0 {
		otlpSrv = server.NewOTLPServer(db, jwtMgr, processor, logger, cfg.GRPCPort)
	} else {
		logger.Info("otlp grpc: disabled (ARISU_GRPC_PORT=0)")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if otlpSrv != nil {
		g.Go(func() error {
			if err := otlpSrv.Start(); err != nil {
				return fmt.Errorf("otlp grpc server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()

		slog.Info("arisu shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		if otlpSrv != nil {
			otlpSrv.Stop()
		}
		return nil
	})

	return g.Wait()
}

// seedBootstrap ensures one project exists so spans can be ingested on a fresh
// install. If ARISU_BOOTSTRAP_API_KEY carries a full key, its hash is stored;
// otherwise a key is generated and logged once.
func seedBootstrap(ctx context.Context, db *storage.DB, cfg config.Config, logger *slog.Logger) error {
	var count int
	if err := db.Pool().QueryRow(ctx, `SELECT count(*) FROM projects`).Scan(&count); err != nil {
		return fmt.Errorf("count projects: %w", err)
	}
	if count > 0 {
		return nil
	}

	project, err := db.CreateProject(ctx, cfg.BootstrapProject)
	if err != nil {
		return err
	}

	var keyID uuid.UUID
	var secret string
	if cfg.BootstrapAPIKey != "" {
		keyID, secret, err = auth.ParseAPIKey(cfg.BootstrapAPIKey)
		if err != nil {
			return fmt.Errorf("parse bootstrap api key: %w", err)
		}
	} else {
		id, key, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}
		keyID = id
		_, secret, _ = auth.ParseAPIKey(key)
		logger.Info("generated bootstrap api key, store it now, it will not be shown again",
			"project", project.Name, "api_key", key)
	}

	hash, err := auth.HashSecret(secret)
	if err != nil {
		return err
	}
	return db.CreateAPIKey(ctx, model.APIKey{
		ID:        keyID,
		ProjectID: project.ID,
		Name:      "bootstrap",
		KeyHash:   hash,
		CreatedAt: time.Now().UTC(),
	})
}
