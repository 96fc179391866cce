package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/completion"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/config"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/envelope"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/retrieval"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/typeguard"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/validation"
)

// DesignToolName is the forced tool the completion service calls with designs
const DesignToolName = "design_circuits"

// Retriever is satisfied by *retrieval.Engine
type Retriever interface {
	Search(ctx context.Context, env *envelope.ContextEnvelope, q retrieval.Query, rec retrieval.Recorder) (*retrieval.Result, envelope.Delta, error)
}

// Recorder receives per-request accounting. metrics.Monitor satisfies it.
type Recorder interface {
	retrieval.Recorder
	RecordCompletion(tokens int)
	RecordBatch(elapsed time.Duration, err error)
	RecordRetry()
}

// ChunkResult is reported once per chunk as soon as it finishes
type ChunkResult struct {
	Chunk        int                        `json:"chunk"`
	Start        int                        `json:"start"`
	Designs      []models.CircuitDesign     `json:"designs"`
	Regulations  []envelope.FoundRegulation `json:"-"`
	DesignDocs   []envelope.FoundDesignDoc  `json:"-"`
	SearchMethod string                     `json:"search_method"`
	Shared       bool                       `json:"shared,omitempty"`
	Err          error                      `json:"-"`
}

// ChunkHandler is called serially, in completion order
type ChunkHandler func(ChunkResult)

// BatchResult is the merged outcome of every chunk, in input order
type BatchResult struct {
	Designs            []models.CircuitDesign `json:"designs"`
	Chunks             int                    `json:"chunks"`
	FailedChunks       int                    `json:"failed_chunks"`
	IncompleteCircuits []string               `json:"incomplete_circuits,omitempty"`
	RetrievalFailed    bool                   `json:"retrieval_failed"`
	Tokens             int                    `json:"tokens"`
}

// Incomplete returns the classified condition for default-filled circuits, or nil
func (r *BatchResult) Incomplete() *models.DesignError {
	if len(r.IncompleteCircuits) == 0 {
		return nil
	}
	return models.NewIncompleteDesignError(r.IncompleteCircuits)
}

// Orchestrator chunks circuits and designs the chunks concurrently
type Orchestrator struct {
	retriever Retriever
	client    completion.Client
	cfg       config.BatchConfig
	model     string
	maxTokens int
	validator *typeguard.SchemaValidator
	schema    json.RawMessage
	inflight  singleflight.Group
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewOrchestrator(retriever Retriever, client completion.Client, cfg config.BatchConfig, completionCfg config.CompletionConfig, logger *zap.Logger) (*Orchestrator, error) {
	schema, err := designToolSchema()
	if err != nil {
		return nil, err
	}
	validator, err := typeguard.NewSchemaValidator(schema)
	if err != nil {
		return nil, fmt.Errorf("design schema: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		retriever: retriever,
		client:    client,
		cfg:       cfg,
		model:     completionCfg.Model,
		maxTokens: completionCfg.MaxTokens,
		validator: validator,
		schema:    schema,
		logger:    logger,
		tracer:    otel.Tracer("batch-orchestrator"),
	}, nil
}

// chunkDesign is the shareable outcome of designing one chunk. It is never
// mutated after it leaves designChunk.
type chunkDesign struct {
	designs         []models.CircuitDesign
	result          *retrieval.Result
	delta           envelope.Delta
	retrievalFailed bool
	tokens          int
}

type chunkOutcome struct {
	designs         []models.CircuitDesign
	delta           envelope.Delta
	failed          bool
	retrievalFailed bool
	tokens          int
}

// Design produces one design per circuit, in input order. A failed chunk
// degrades to default-filled placeholders and never aborts its siblings.
// The returned envelope has every chunk's delta merged in chunk order.
func (o *Orchestrator) Design(ctx context.Context, env *envelope.ContextEnvelope, circuits []models.ExtractedCircuit, inst models.Installation, rec Recorder, onChunk ChunkHandler) (*BatchResult, *envelope.ContextEnvelope, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.design")
	defer span.End()

	if len(circuits) == 0 {
		return nil, env, models.NewNoCircuitsError(false)
	}

	chunks := Chunk(circuits, o.cfg.Size)
	span.SetAttributes(
		attribute.Int("circuits", len(circuits)),
		attribute.Int("chunks", len(chunks)),
	)

	outcomes := make([]chunkOutcome, len(chunks))
	var mu sync.Mutex

	var g errgroup.Group
	if o.cfg.MaxConcurrency > 0 {
		g.SetLimit(o.cfg.MaxConcurrency)
	}
	start := 0
	for i, ch := range chunks {
		i, ch, first := i, ch, start
		start += len(ch)
		g.Go(func() error {
			out, report := o.runChunk(ctx, env, i, first, ch, inst, rec)
			mu.Lock()
			defer mu.Unlock()
			outcomes[i] = out
			if onChunk != nil {
				onChunk(report)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{
		Designs: make([]models.CircuitDesign, 0, len(circuits)),
		Chunks:  len(chunks),
	}
	merged := env
	for _, out := range outcomes {
		result.Designs = append(result.Designs, out.designs...)
		if out.failed {
			result.FailedChunks++
		}
		if out.retrievalFailed {
			result.RetrievalFailed = true
		}
		result.Tokens += out.tokens
		merged = envelope.Merge(merged, out.delta)
	}
	for _, d := range result.Designs {
		if d.Incomplete {
			result.IncompleteCircuits = append(result.IncompleteCircuits, d.Name)
		}
	}

	span.SetAttributes(
		attribute.Int("failed_chunks", result.FailedChunks),
		attribute.Int("incomplete", len(result.IncompleteCircuits)),
	)
	o.logger.Info("batch design finished",
		zap.String("request_id", env.RequestID),
		zap.Int("circuits", len(circuits)),
		zap.Int("chunks", result.Chunks),
		zap.Int("failed_chunks", result.FailedChunks),
		zap.Int("incomplete", len(result.IncompleteCircuits)),
	)
	return result, merged, nil
}

func (o *Orchestrator) runChunk(ctx context.Context, env *envelope.ContextEnvelope, idx, start int, circuits []models.ExtractedCircuit, inst models.Installation, rec Recorder) (chunkOutcome, ChunkResult) {
	began := time.Now()
	report := ChunkResult{Chunk: idx, Start: start}

	key, err := dedupKey(dedupScope(env), inst, circuits)
	if err != nil {
		// Unkeyable chunks are designed without sharing
		key = fmt.Sprintf("%s/%s/%d", env.SessionID, env.RequestID, idx)
	}

	leader := false
	v, err, shared := o.inflight.Do(key, func() (any, error) {
		leader = true
		// Detached from the caller so a follower is not failed by the
		// leader's cancellation; bounded by the chunk budget instead.
		chunkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.chunkTimeout(ctx))
		defer cancel()
		return o.designChunk(chunkCtx, env, idx, circuits, inst, rec)
	})
	report.Shared = shared && !leader

	rec.RecordBatch(time.Since(began), err)
	if err != nil {
		o.logger.Warn("chunk failed, using default designs",
			zap.String("request_id", env.RequestID),
			zap.Int("chunk", idx),
			zap.Int("circuits", len(circuits)),
			zap.Error(err),
		)
		designs := make([]models.CircuitDesign, len(circuits))
		for i, c := range circuits {
			designs[i] = typeguard.DefaultDesign(start+i, c, failureReason(err))
		}
		report.Designs = designs
		report.Err = err
		report.SearchMethod = retrieval.MethodNone
		return chunkOutcome{
			designs: designs,
			delta:   envelope.Step("design", fmt.Sprintf("chunk %d failed: %v", idx, err), time.Now()),
			failed:  true,
		}, report
	}

	cd := v.(*chunkDesign)
	designs := make([]models.CircuitDesign, len(cd.designs))
	copy(designs, cd.designs)
	for i := range designs {
		designs[i].Index = start + i
	}

	report.Designs = designs
	if cd.result != nil {
		report.Regulations = cd.result.Regulations
		report.DesignDocs = cd.result.DesignDocs
		report.SearchMethod = cd.result.SearchMethod
	}

	out := chunkOutcome{
		designs:         designs,
		retrievalFailed: cd.retrievalFailed,
	}
	// Followers reuse the leader's collaborator calls, so only the leader counts them
	if report.Shared {
		out.delta = envelope.Step("design", fmt.Sprintf("chunk %d shared an in-flight result", idx), time.Now())
	} else {
		out.delta = cd.delta
		out.tokens = cd.tokens
	}
	return out, report
}

func (o *Orchestrator) chunkTimeout(ctx context.Context) time.Duration {
	budget := o.cfg.ChunkTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); budget <= 0 || remaining < budget {
			budget = remaining
		}
	}
	if budget <= 0 {
		budget = time.Millisecond
	}
	return budget
}

func (o *Orchestrator) designChunk(ctx context.Context, env *envelope.ContextEnvelope, idx int, circuits []models.ExtractedCircuit, inst models.Installation, rec Recorder) (*chunkDesign, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.design_chunk")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk", idx), attribute.Int("circuits", len(circuits)))

	out := &chunkDesign{}

	res, delta, err := o.retriever.Search(ctx, env, QueryFor(circuits, inst), rec)
	switch {
	case errors.Is(err, retrieval.ErrAllTiersFailed):
		out.retrievalFailed = true
	case err != nil:
		// Designs without evidence are still useful; the failure is reported upstream
		out.retrievalFailed = true
		o.logger.Warn("retrieval failed for chunk", zap.Int("chunk", idx), zap.Error(err))
	}
	out.result = res
	out.delta = delta

	userPrompt, err := designUserPrompt(circuits, inst, res)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Complete(ctx, completion.Request{
		Model: o.model,
		Messages: []completion.Message{
			{Role: "system", Content: designSystemPrompt(inst)},
			{Role: "user", Content: userPrompt},
		},
		Tools: []completion.Tool{{
			Name:        DesignToolName,
			Description: "Return the calculated design of every circuit, in the order given",
			Parameters:  o.schema,
		}},
		ToolChoice:  DesignToolName,
		MaxTokens:   o.maxTokens,
		Temperature: 0,
		OnRetry:     func(error) { rec.RecordRetry() },
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	rec.RecordCompletion(resp.Usage.TotalTokens)
	out.tokens = resp.Usage.TotalTokens

	call, err := resp.ToolCall(DesignToolName)
	if err != nil {
		return nil, err
	}
	payload, err := o.validator.Decode(call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("malformed design payload: %w", err)
	}
	returned, err := typeguard.DesignsFromPayload(payload)
	if err != nil {
		return nil, err
	}
	if len(returned) != len(circuits) {
		o.logger.Warn("design count mismatch",
			zap.Int("chunk", idx),
			zap.Int("expected", len(circuits)),
			zap.Int("returned", len(returned)),
		)
	}

	out.designs = make([]models.CircuitDesign, len(circuits))
	for i, c := range circuits {
		if i < len(returned) {
			out.designs[i] = typeguard.FillDefaults(i, returned[i], c)
		} else {
			out.designs[i] = typeguard.DefaultDesign(i, c, "no design returned for this circuit")
		}
	}

	out.delta.TotalTokens += out.tokens
	out.delta.Decisions = append(out.delta.Decisions, decisionsFor(out.designs)...)
	out.delta.AgentChain = append(out.delta.AgentChain, envelope.AgentStep{
		Agent: "design",
		Note:  fmt.Sprintf("chunk %d: %d circuits", idx, len(circuits)),
		At:    time.Now(),
	})
	return out, nil
}

// Chunk splits circuits into consecutive groups of at most size
func Chunk(circuits []models.ExtractedCircuit, size int) [][]models.ExtractedCircuit {
	if size < 1 {
		size = 1
	}
	var out [][]models.ExtractedCircuit
	for start := 0; start < len(circuits); start += size {
		end := start + size
		if end > len(circuits) {
			end = len(circuits)
		}
		out = append(out, circuits[start:end])
	}
	return out
}

// QueryFor builds the retrieval query for a chunk: the most common load type
// as the circuit-type hint and the largest load as the power hint.
func QueryFor(circuits []models.ExtractedCircuit, inst models.Installation) retrieval.Query {
	counts := map[models.LoadType]int{}
	var power float64
	terms := make([]string, 0, len(circuits)+2)
	seen := map[string]bool{}
	for _, c := range circuits {
		counts[c.LoadType]++
		if c.LoadPowerW > power {
			power = c.LoadPowerW
		}
		for _, t := range []string{string(c.LoadType), string(c.SpecialLocation)} {
			if t != "" && !seen[t] {
				seen[t] = true
				terms = append(terms, t)
			}
		}
	}

	var dominant models.LoadType
	types := make([]models.LoadType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		if dominant == "" || counts[t] > counts[dominant] {
			dominant = t
		}
	}

	names := make([]string, 0, len(circuits))
	for _, c := range circuits {
		names = append(names, fmt.Sprintf("%s %s %.0fW", c.Name, c.LoadType, c.LoadPowerW))
	}
	expanded := fmt.Sprintf("%s installation circuit design: %s", inst.Class, strings.Join(names, "; "))

	return retrieval.Query{
		Terms:       terms,
		CircuitType: string(dominant),
		PowerW:      power,
		Expanded:    expanded,
	}
}

// dedupScope is the session, or the request itself when there is no session
func dedupScope(env *envelope.ContextEnvelope) string {
	if env.SessionID == "" {
		return "request:" + env.RequestID
	}
	return "session:" + env.SessionID
}

// dedupKey identifies semantically identical chunk requests within a scope.
// Field order and whitespace do not affect the key.
func dedupKey(scope string, inst models.Installation, circuits []models.ExtractedCircuit) (string, error) {
	raw, err := json.Marshal(struct {
		Installation models.Installation      `json:"installation"`
		Circuits     []models.ExtractedCircuit `json:"circuits"`
	}{inst, circuits})
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	return scope + "\x00" + string(canonical), nil
}

func decisionsFor(designs []models.CircuitDesign) []envelope.DesignDecision {
	out := make([]envelope.DesignDecision, 0, len(designs))
	for _, d := range designs {
		if d.Incomplete || d.Protection == nil {
			continue
		}
		out = append(out, envelope.DesignDecision{
			Circuit:     d.Name,
			Decision:    fmt.Sprintf("%gmm² %s on %gA %s", d.CableSizeMM2, d.CableType, d.Protection.RatingA, d.Protection.Type),
			Reason:      d.Justifications.Text(),
			Regulations: validation.Citations(d.Justifications.Text()),
		})
	}
	return out
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, completion.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "design timed out"
	case errors.Is(err, completion.ErrNoToolCall):
		return "design service returned no structured result"
	default:
		return "design service error"
	}
}
