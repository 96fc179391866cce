package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/completion"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/config"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/embedding"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/extraction"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/gateway"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/logging"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/metrics"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/orchestration"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/retrieval"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/validation"

	_ "github.com/bizmatters/agent-builder/circuit-designer/docs" // swagger docs
)

// Set at build time with -ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// @title Circuit Designer API
// @version 1.0
// @description Batch electrical circuit design against BS 7671.
// @description
// @description Circuits are extracted from a free-text description, designed in concurrent batches with
// @description regulation evidence from hybrid retrieval, validated, and streamed back as JSON chunks.

// @contact.name API Support
// @contact.email support@bizmatters.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	tp, err := initTracer()
	if err != nil {
		logger.Fatal("failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	pool, err := connectDatabase(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database after retries", zap.Error(err))
	}
	defer pool.Close()

	embedder, err := embedding.New(context.Background(), cfg.Embedding)
	if err != nil {
		logger.Fatal("failed to initialize embedder", zap.Error(err))
	}
	completionClient := completion.NewHTTPClient(cfg.Completion, logger)

	engine := retrieval.NewEngine(retrieval.NewPGStore(pool), embedder, cfg.Retrieval, retrieval.WithLogger(logger))
	agent, err := extraction.NewAgent(completionClient, cfg.Completion.ExtractionModel, cfg.Batch.ExtractionTimeout, logger)
	if err != nil {
		logger.Fatal("failed to initialize extraction agent", zap.Error(err))
	}
	orchestrator, err := orchestration.NewOrchestrator(engine, completionClient, cfg.Batch, cfg.Completion, logger)
	if err != nil {
		logger.Fatal("failed to initialize orchestrator", zap.Error(err))
	}
	designMetrics, err := metrics.NewDesignMetrics()
	if err != nil {
		logger.Fatal("failed to initialize design metrics", zap.Error(err))
	}

	service := orchestration.NewService(
		agent,
		orchestrator,
		validation.New(validation.DefaultOptions()),
		cfg.Batch,
		orchestration.WithDesignMetrics(designMetrics),
		orchestration.WithServiceLogger(logger),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := gateway.NewHandler(service, pool, cfg.Batch, gateway.BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      gateway.NewRouter(handler, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout, // covers a full streamed batch
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting circuit designer API server",
			zap.String("port", cfg.Server.Port),
			zap.String("version", Version),
			zap.String("commit", GitCommit),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// connectDatabase opens the pool, retrying until the database answers a ping
func connectDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to PostgreSQL database")

	var pool *pgxpool.Pool
	var err error
	for i := 0; i < cfg.ConnectAttempts; i++ {
		pool, err = pgxpool.New(context.Background(), cfg.URL)
		if err == nil {
			err = pool.Ping(context.Background())
			if err == nil {
				logger.Info("connected to PostgreSQL database")
				return pool, nil
			}
			pool.Close()
		}
		logger.Warn("waiting for database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", cfg.ConnectAttempts),
			zap.Error(err),
		)
		time.Sleep(cfg.RetryDelay)
	}
	if err == nil {
		err = errors.New("no connection attempts configured")
	}
	return nil, err
}

// initTracer initializes OpenTelemetry tracing
func initTracer() (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)

	return tp, nil
}
