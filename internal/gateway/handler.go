package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/config"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/logging"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/orchestration"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/streaming"
)

// DesignRunner is satisfied by *orchestration.Service
type DesignRunner interface {
	Run(ctx context.Context, req models.DesignRequest, out *streaming.Builder) (*orchestration.Outcome, error)
}

// Pinger is satisfied by *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildInfo is reported by the health endpoint
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	service DesignRunner
	pool    Pinger
	cfg     config.BatchConfig
	build   BuildInfo
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewHandler creates a new gateway handler
func NewHandler(service DesignRunner, pool Pinger, cfg config.BatchConfig, build BuildInfo, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		pool:    pool,
		cfg:     cfg,
		build:   build,
		logger:  logging.OrNop(logger),
		tracer:  otel.Tracer("gateway"),
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	BuildInfo
}

// Health godoc
// @Summary Liveness check
// @Description Reports that the process is up along with its build information
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		BuildInfo: h.build,
	})
}

// Ready godoc
// @Summary Readiness check
// @Description Reports whether the regulation store is reachable
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /ready [get]
func (h *Handler) Ready(c *gin.Context) {
	if h.pool == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "database not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.pool.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "database connection failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Design godoc
// @Summary Design a batch of circuits
// @Description Extracts circuits from the description, designs them in concurrent batches and validates the result.
// @Description The response is a server-sent event stream of JSON chunks framed as "data: <json>".
// @Description The stream always ends with exactly one terminal chunk: "done" or a non-recoverable "error".
// @Tags design
// @Accept json
// @Produce text/event-stream
// @Param request body models.DesignRequest true "Design request"
// @Success 200 {object} streaming.Chunk
// @Failure 400 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /design [post]
func (h *Handler) Design(c *gin.Context) {
	var req models.DesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		de := models.NewInvalidInputError("request body is not valid JSON")
		c.JSON(http.StatusBadRequest, de.Response())
		return
	}
	// Request-shape errors are answered before the stream starts
	if err := req.Validate(); err != nil {
		de := models.Classify(err)
		c.JSON(de.Status, de.Response())
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.design")
	defer span.End()
	span.SetAttributes(
		attribute.String("mode", req.Mode),
		attribute.String("session_id", req.SessionID),
	)

	h.stream(ctx, req, streaming.NewSSETransport(c.Writer))
}

// stream runs the request and pumps its chunks onto t. Run is cancelled
// as soon as the transport stops accepting chunks, and stream returns only
// once Run has returned.
func (h *Handler) stream(ctx context.Context, req models.DesignRequest, t streaming.Transport) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := streaming.NewBuilder(h.cfg.StreamBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := h.service.Run(ctx, req, b); err != nil {
			h.logger.Debug("design stream ended with error", zap.Error(err))
		}
	}()

	if err := streaming.Pump(ctx, b, t, h.logger); err != nil {
		h.logger.Warn("design stream interrupted", zap.String("session_id", req.SessionID), zap.Error(err))
	}
	cancel()
	<-done
}
