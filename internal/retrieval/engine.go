// Package retrieval implements the three-tier evidence cascade: an indexed
// exact lookup, then vector similarity, then a keyword fallback.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/config"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/embedding"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/envelope"
)

// ErrAllTiersFailed is returned when every tier that ran failed
var ErrAllTiersFailed = errors.New("all retrieval tiers failed")

// Search method values reported in Result.SearchMethod
const (
	MethodExact   = "exact"
	MethodVector  = "vector"
	MethodKeyword = "keyword"
	MethodHybrid  = "hybrid"
	MethodNone    = "none"
)

// Query is one retrieval request
type Query struct {
	Terms       []string
	CircuitType string
	PowerW      float64
	// Expanded is the free-text query embedded for Tier 2. Built from the
	// terms and circuit type when empty.
	Expanded string
}

func (q Query) text() string {
	if s := strings.TrimSpace(q.Expanded); s != "" {
		return s
	}
	parts := make([]string, 0, len(q.Terms)+1)
	if q.CircuitType != "" {
		parts = append(parts, q.CircuitType)
	}
	parts = append(parts, q.Terms...)
	return strings.Join(parts, " ")
}

// TierStats describes one tier's run
type TierStats struct {
	Ran      bool          `json:"ran"`
	Failed   bool          `json:"failed"`
	Results  int           `json:"results"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type Stats struct {
	Exact    TierStats `json:"exact"`
	Vector   TierStats `json:"vector"`
	Keyword  TierStats `json:"keyword"`
	CacheHit bool      `json:"cache_hit"`
	Calls    int       `json:"calls"`
}

type Result struct {
	Regulations  []envelope.FoundRegulation `json:"regulations"`
	DesignDocs   []envelope.FoundDesignDoc  `json:"design_docs"`
	SearchMethod string                     `json:"search_method"`
	Stats        Stats                      `json:"stats"`
}

// Recorder receives per-tier timings. metrics.Monitor satisfies it.
type Recorder interface {
	RecordSearch(tier string, elapsed time.Duration, err error)
	RecordCacheHit()
}

type nopRecorder struct{}

func (nopRecorder) RecordSearch(string, time.Duration, error) {}
func (nopRecorder) RecordCacheHit()                           {}

// Engine runs the cascade. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	store    Store
	embedder embedding.Embedder
	cfg      config.RetrievalConfig
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Engine)

// WithClock overrides the clock used for embedding cache age
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(store Store, embedder embedding.Embedder, cfg config.RetrievalConfig, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("retrieval-engine"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs the cascade for q. The returned delta carries the merged
// regulations, a fresh embedding when one was generated, one agent-chain step,
// and the number of collaborator calls made. Tier failures degrade the result
// and are reported in Stats; ErrAllTiersFailed is returned only when no tier
// that ran succeeded.
func (e *Engine) Search(ctx context.Context, env *envelope.ContextEnvelope, q Query, rec Recorder) (*Result, envelope.Delta, error) {
	ctx, span := e.tracer.Start(ctx, "retrieval.search")
	defer span.End()

	if rec == nil {
		rec = nopRecorder{}
	}

	res := &Result{}
	var delta envelope.Delta

	// Tier 1
	exact := e.exactTier(ctx, q, res, rec)

	// Tier 2
	var vectorRegs []envelope.FoundRegulation
	var vectorDocs []envelope.FoundDesignDoc
	if len(exact) < e.cfg.ExactSufficient {
		vectorRegs, vectorDocs, delta.Embedding = e.vectorTier(ctx, env, q, res, rec)
	}

	// Tier 3
	var keywordRegs []envelope.FoundRegulation
	var keywordDocs []envelope.FoundDesignDoc
	found := len(envelope.DedupRegulations(exact, vectorRegs)) + len(vectorDocs)
	if found < e.cfg.KeywordTrigger && q.CircuitType != "" {
		keywordRegs, keywordDocs = e.keywordTier(ctx, q, res, rec)
	}

	res.Regulations = capRegulations(envelope.DedupRegulations(exact, vectorRegs, keywordRegs), e.cfg.FinalRegulationCap)
	res.DesignDocs = capDocs(dedupDocs(vectorDocs, keywordDocs), e.cfg.FinalDesignCap)
	res.SearchMethod = searchMethod(res.Stats)

	span.SetAttributes(
		attribute.String("search_method", res.SearchMethod),
		attribute.Int("regulations", len(res.Regulations)),
		attribute.Int("design_docs", len(res.DesignDocs)),
	)

	delta.Regulations = res.Regulations
	delta.RAGCallCount = res.Stats.Calls
	delta.AgentChain = []envelope.AgentStep{{
		Agent: "retrieval",
		Note:  fmt.Sprintf("%s: %d regulations, %d design docs", res.SearchMethod, len(res.Regulations), len(res.DesignDocs)),
		At:    e.now(),
	}}

	if allFailed(res.Stats) {
		span.RecordError(ErrAllTiersFailed)
		e.logger.Warn("retrieval cascade exhausted",
			zap.String("exact_error", res.Stats.Exact.Error),
			zap.String("vector_error", res.Stats.Vector.Error),
			zap.String("keyword_error", res.Stats.Keyword.Error))
		return res, delta, ErrAllTiersFailed
	}

	e.logger.Debug("retrieval complete",
		zap.String("search_method", res.SearchMethod),
		zap.Int("regulations", len(res.Regulations)),
		zap.Int("design_docs", len(res.DesignDocs)),
		zap.Bool("cache_hit", res.Stats.CacheHit))

	return res, delta, nil
}

func (e *Engine) exactTier(ctx context.Context, q Query, res *Result, rec Recorder) []envelope.FoundRegulation {
	start := time.Now()
	stats := &res.Stats.Exact
	stats.Ran = true

	var out []envelope.FoundRegulation
	err := func() error {
		res.Stats.Calls++
		ids, err := e.store.ExactLookup(ctx, q.CircuitType, q.PowerW, q.Terms)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		res.Stats.Calls++
		rows, err := e.store.FetchRegulations(ctx, ids)
		if err != nil {
			return err
		}
		for _, r := range rows {
			out = append(out, envelope.FoundRegulation{
				ID:        r.ID,
				Section:   r.Section,
				Content:   r.Content,
				Relevance: 100,
				Source:    envelope.SourceExact,
			})
		}
		return nil
	}()

	finishTier(stats, MethodExact, start, len(out), err, rec)
	return out
}

func (e *Engine) vectorTier(ctx context.Context, env *envelope.ContextEnvelope, q Query, res *Result, rec Recorder) ([]envelope.FoundRegulation, []envelope.FoundDesignDoc, *envelope.CachedEmbedding) {
	start := time.Now()
	stats := &res.Stats.Vector
	stats.Ran = true

	text := q.text()
	var fresh *envelope.CachedEmbedding
	vector, hit := env.CachedEmbeddingFor(text, e.now(), e.cfg.EmbeddingCacheTTL)
	if hit {
		res.Stats.CacheHit = true
		rec.RecordCacheHit()
	} else {
		res.Stats.Calls++
		v, err := e.embedder.Embed(ctx, text)
		if err != nil {
			finishTier(stats, MethodVector, start, 0, fmt.Errorf("embedding failed: %w", err), rec)
			return nil, nil, nil
		}
		vector = v
		fresh = &envelope.CachedEmbedding{Query: text, Vector: v, GeneratedAt: e.now()}
	}

	var (
		mu        sync.Mutex
		regs      []RegulationRow
		design    []DocRow
		safety    []DocRow
		attempted int
		failures  []error
	)
	includeSafety := env != nil && env.Priority.HealthSafety > e.cfg.HealthSafetyPriority

	// Sub-search errors are collected, not returned, so one backend failing
	// never cancels its siblings.
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures = append(failures, err)
		}
	}

	var g errgroup.Group
	attempted = 2
	g.Go(func() error {
		rows, err := e.store.MatchRegulations(ctx, vector, e.cfg.RegulationThreshold, e.cfg.RegulationCap)
		regs = rows
		record(err)
		return nil
	})
	g.Go(func() error {
		rows, err := e.store.MatchDesignKnowledge(ctx, vector, e.cfg.DesignThreshold, e.cfg.DesignCap)
		design = rows
		record(err)
		return nil
	})
	if includeSafety {
		attempted++
		g.Go(func() error {
			rows, err := e.store.MatchHealthSafety(ctx, vector, e.cfg.HealthSafetyThreshold, e.cfg.HealthSafetyCap)
			safety = rows
			record(err)
			return nil
		})
	}
	_ = g.Wait()
	res.Stats.Calls += attempted

	var outRegs []envelope.FoundRegulation
	for _, r := range regs {
		outRegs = append(outRegs, envelope.FoundRegulation{
			ID:        r.ID,
			Section:   r.Section,
			Content:   r.Content,
			Relevance: r.Similarity * 100,
			Source:    envelope.SourceVector,
		})
	}
	var outDocs []envelope.FoundDesignDoc
	for _, rows := range [][]DocRow{design, safety} {
		for _, d := range rows {
			outDocs = append(outDocs, envelope.FoundDesignDoc{
				ID:        d.ID,
				Topic:     d.Topic,
				Content:   d.Content,
				Relevance: d.Similarity * 100,
				Source:    envelope.SourceVector,
			})
		}
	}

	var err error
	if len(failures) == attempted {
		err = errors.Join(failures...)
	} else if len(failures) > 0 {
		e.logger.Warn("vector sub-search failed", zap.Error(errors.Join(failures...)))
	}
	finishTier(stats, MethodVector, start, len(outRegs)+len(outDocs), err, rec)
	return outRegs, outDocs, fresh
}

func (e *Engine) keywordTier(ctx context.Context, q Query, res *Result, rec Recorder) ([]envelope.FoundRegulation, []envelope.FoundDesignDoc) {
	start := time.Now()
	stats := &res.Stats.Keyword
	stats.Ran = true

	var (
		regs           []RegulationRow
		docs           []DocRow
		regErr, docErr error
		g              errgroup.Group
	)
	g.Go(func() error {
		regs, regErr = e.store.KeywordRegulations(ctx, q.CircuitType, e.cfg.RegulationCap)
		return nil
	})
	g.Go(func() error {
		docs, docErr = e.store.KeywordDesignKnowledge(ctx, q.CircuitType, e.cfg.DesignCap)
		return nil
	})
	_ = g.Wait()
	res.Stats.Calls += 2

	var outRegs []envelope.FoundRegulation
	for _, r := range regs {
		outRegs = append(outRegs, envelope.FoundRegulation{
			ID:        r.ID,
			Section:   r.Section,
			Content:   r.Content,
			Relevance: e.cfg.KeywordRelevance,
			Source:    envelope.SourceKeyword,
		})
	}
	var outDocs []envelope.FoundDesignDoc
	for _, d := range docs {
		outDocs = append(outDocs, envelope.FoundDesignDoc{
			ID:        d.ID,
			Topic:     d.Topic,
			Content:   d.Content,
			Relevance: e.cfg.KeywordRelevance,
			Source:    envelope.SourceKeyword,
		})
	}

	var err error
	if regErr != nil && docErr != nil {
		err = errors.Join(regErr, docErr)
	}
	finishTier(stats, MethodKeyword, start, len(outRegs)+len(outDocs), err, rec)
	return outRegs, outDocs
}

func finishTier(stats *TierStats, tier string, start time.Time, results int, err error, rec Recorder) {
	stats.Duration = time.Since(start)
	stats.Results = results
	if err != nil {
		stats.Failed = true
		stats.Error = err.Error()
	}
	rec.RecordSearch(tier, stats.Duration, err)
}

func allFailed(s Stats) bool {
	ran := 0
	for _, t := range []TierStats{s.Exact, s.Vector, s.Keyword} {
		if !t.Ran {
			continue
		}
		ran++
		if !t.Failed {
			return false
		}
	}
	return ran > 0
}

// searchMethod names the tiers that contributed results
func searchMethod(s Stats) string {
	var contributed []string
	if s.Exact.Results > 0 {
		contributed = append(contributed, MethodExact)
	}
	if s.Vector.Results > 0 {
		contributed = append(contributed, MethodVector)
	}
	if s.Keyword.Results > 0 {
		contributed = append(contributed, MethodKeyword)
	}
	switch len(contributed) {
	case 0:
		return MethodNone
	case 1:
		return contributed[0]
	default:
		return MethodHybrid
	}
}

// dedupDocs removes repeated IDs keeping the first occurrence and the
// highest relevance seen
func dedupDocs(lists ...[]envelope.FoundDesignDoc) []envelope.FoundDesignDoc {
	var out []envelope.FoundDesignDoc
	index := make(map[string]int)
	for _, l := range lists {
		for _, d := range l {
			if i, seen := index[d.ID]; seen {
				if d.Relevance > out[i].Relevance {
					out[i].Relevance = d.Relevance
				}
				continue
			}
			index[d.ID] = len(out)
			out = append(out, d)
		}
	}
	return out
}

func capRegulations(in []envelope.FoundRegulation, n int) []envelope.FoundRegulation {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}

func capDocs(in []envelope.FoundDesignDoc, n int) []envelope.FoundDesignDoc {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}
