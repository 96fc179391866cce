package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/config"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/envelope"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/extraction"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/metrics"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/streaming"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/typeguard"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/validation"
)

// Tool call names used on the stream
const (
	StreamExtractedCircuits = "extracted_circuits"
	StreamCircuitDesigns    = "circuit_designs"
	StreamValidation        = "validation"
	StreamPerformance       = "performance"
)

// Extractor is satisfied by *extraction.Agent
type Extractor interface {
	Extract(ctx context.Context, description string) *extraction.Result
}

// Service runs the full batch design pipeline for one request
type Service struct {
	extractor     Extractor
	orchestrator  *Orchestrator
	validator     *validation.Validator
	cfg           config.BatchConfig
	designMetrics *metrics.DesignMetrics
	logger        *zap.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

type ServiceOption func(*Service)

func WithDesignMetrics(dm *metrics.DesignMetrics) ServiceOption {
	return func(s *Service) { s.designMetrics = dm }
}

func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates the pipeline service
func NewService(extractor Extractor, orchestrator *Orchestrator, validator *validation.Validator, cfg config.BatchConfig, opts ...ServiceOption) *Service {
	s := &Service{
		extractor:    extractor,
		orchestrator: orchestrator,
		validator:    validator,
		cfg:          cfg,
		logger:       zap.NewNop(),
		tracer:       otel.Tracer("design-service"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Outcome is everything produced for one request
type Outcome struct {
	RequestID   string                     `json:"request_id"`
	Extraction  *extraction.Result         `json:"extraction,omitempty"`
	Batch       *BatchResult               `json:"batch,omitempty"`
	Validation  *validation.Result         `json:"validation,omitempty"`
	Envelope    *envelope.ContextEnvelope  `json:"-"`
	Performance metrics.PerformanceMetrics `json:"performance"`
}

// Run executes the request and writes its stream to out, which is always
// closed on return. The returned error is the terminal classified error, if
// any; recoverable conditions are streamed and do not produce an error.
func (s *Service) Run(ctx context.Context, req models.DesignRequest, out *streaming.Builder) (*Outcome, error) {
	defer out.Close()

	requestID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "service.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", requestID),
		attribute.String("mode", req.Mode),
	)

	// Stream writes use the caller's context so a request timeout can still be reported
	streamCtx := ctx
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	began := s.now()
	logger := s.logger.With(zap.String("request_id", requestID))
	monitor := metrics.NewMonitor(requestID, logger)
	outcome := &Outcome{RequestID: requestID}
	s.recordStarted(ctx, req.Mode)

	emit := func(err error) {
		if err != nil {
			logger.Debug("failed to write stream chunk", zap.Error(err))
		}
	}

	fail := func(de *models.DesignError) (*Outcome, error) {
		monitor.MarkFailed()
		outcome.Performance = monitor.Finalize()
		s.recordFailed(ctx, req.Mode, de.Code, s.now().Sub(began))
		span.RecordError(de)
		logger.Warn("design request failed", zap.String("code", de.Code), zap.Error(de))
		emit(out.Fail(streamCtx, de))
		return outcome, de
	}

	if err := req.Validate(); err != nil {
		return fail(models.Classify(err))
	}

	hasDescription := strings.TrimSpace(req.Description) != ""
	explicit := normalizeExplicit(req.Circuits)
	if !hasDescription && len(explicit) == 0 {
		return fail(models.NewNoCircuitsError(false))
	}

	intent := envelope.InferIntent(req.Description, len(explicit), envelope.GoalDesign)
	if err := envelope.ValidateIntent(intent); err != nil {
		return fail(models.NewInvalidInputError(err.Error()))
	}
	env := envelope.New(requestID, req.SessionID, intent, began)

	circuits := explicit
	if hasDescription {
		stop := monitor.StartStage("extraction")
		res := s.extractor.Extract(ctx, req.Description)
		stop()

		outcome.Extraction = res
		if res.Tokens > 0 {
			monitor.RecordCompletion(res.Tokens)
		}
		env = envelope.Merge(env, envelope.Delta{
			TotalTokens: res.Tokens,
			AgentChain: []envelope.AgentStep{{
				Agent: "extraction",
				Note:  fmt.Sprintf("%s: %d circuits", res.Method, len(res.Circuits)),
				At:    s.now(),
			}},
		})
		emit(out.ToolCall(streamCtx, StreamExtractedCircuits, res))
		circuits = append(append([]models.ExtractedCircuit{}, explicit...), res.Circuits...)
	}

	if len(circuits) == 0 {
		return fail(models.NewNoCircuitsError(hasDescription))
	}

	emit(out.Token(streamCtx, fmt.Sprintf("Designing %d circuits in %d batches", len(circuits), len(Chunk(circuits, s.cfg.Size)))))

	cited := map[string]bool{}
	onChunk := func(r ChunkResult) {
		for _, reg := range r.Regulations {
			if cited["reg:"+reg.ID] {
				continue
			}
			cited["reg:"+reg.ID] = true
			emit(out.Citation(streamCtx, streaming.RegulationCitation(reg)))
		}
		for _, doc := range r.DesignDocs {
			if cited["doc:"+doc.ID] {
				continue
			}
			cited["doc:"+doc.ID] = true
			emit(out.Citation(streamCtx, streaming.DesignDocCitation(doc)))
		}
		emit(out.ToolCall(streamCtx, StreamCircuitDesigns, r))
	}

	stop := monitor.StartStage("design")
	batch, env, err := s.orchestrator.Design(ctx, env, circuits, req.Installation, monitor, onChunk)
	stop()
	if err != nil {
		return fail(models.Classify(err))
	}
	outcome.Batch = batch
	outcome.Envelope = env

	stop = monitor.StartStage("validation")
	vr := s.validator.Validate(batch.Designs, req.Installation)
	stop()
	outcome.Validation = &vr
	emit(out.ToolCall(streamCtx, StreamValidation, vr))

	if batch.RetrievalFailed {
		emit(out.Error(streamCtx, models.NewRAGSearchFailedError(nil)))
	}
	if de := batch.Incomplete(); de != nil {
		emit(out.Error(streamCtx, de))
	}
	if !vr.Passed {
		emit(out.Error(streamCtx, models.NewNonCompliantDesignError(len(vr.Errors))))
	}

	outcome.Performance = monitor.Finalize()
	emit(out.ToolCall(streamCtx, StreamPerformance, outcome.Performance))
	s.recordCompleted(ctx, req.Mode, len(batch.Designs), s.now().Sub(began))

	span.SetAttributes(
		attribute.Int("circuits", len(batch.Designs)),
		attribute.Bool("passed", vr.Passed),
	)
	logger.Info("design request completed",
		zap.Int("circuits", len(batch.Designs)),
		zap.Int("critical", len(vr.Errors)),
		zap.Int("warnings", len(vr.Warnings)),
		zap.Int("incomplete", len(batch.IncompleteCircuits)),
		zap.Int("rag_calls", env.RAGCallCount),
		zap.Int("tokens", env.TotalTokens),
	)
	return outcome, nil
}

// normalizeExplicit guards caller-supplied circuits and expands quantities
func normalizeExplicit(in []models.ExtractedCircuit) []models.ExtractedCircuit {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.ExtractedCircuit, 0, len(in))
	for _, c := range in {
		out = append(out, typeguard.NormalizeCircuit(c))
	}
	return extraction.ExpandQuantities(out)
}

func (s *Service) recordStarted(ctx context.Context, mode string) {
	if s.designMetrics != nil {
		s.designMetrics.RecordRequestStarted(ctx, mode)
	}
}

func (s *Service) recordCompleted(ctx context.Context, mode string, circuits int, d time.Duration) {
	if s.designMetrics != nil {
		s.designMetrics.RecordRequestCompleted(ctx, mode, circuits, d)
	}
}

func (s *Service) recordFailed(ctx context.Context, mode, code string, d time.Duration) {
	if s.designMetrics != nil {
		s.designMetrics.RecordRequestFailed(ctx, mode, code, d)
	}
}
