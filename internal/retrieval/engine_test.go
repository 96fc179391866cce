package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/config"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/envelope"
)

// fakeStore is a hand-written Store with canned results and call counters
type fakeStore struct {
	mu sync.Mutex

	exactIDs    []string
	exactErr    error
	regulations map[string]RegulationRow

	vectorRegs   []RegulationRow
	vectorDesign []DocRow
	vectorSafety []DocRow
	vectorErr    error

	keywordRegs   []RegulationRow
	keywordDesign []DocRow
	keywordErr    error

	calls map[string]int
}

func (f *fakeStore) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeStore) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeStore) ExactLookup(ctx context.Context, circuitType string, powerW float64, terms []string) ([]string, error) {
	f.hit("exact")
	return f.exactIDs, f.exactErr
}

func (f *fakeStore) FetchRegulations(ctx context.Context, ids []string) ([]RegulationRow, error) {
	f.hit("fetch")
	var out []RegulationRow
	for _, id := range ids {
		if r, ok := f.regulations[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) MatchRegulations(ctx context.Context, vector []float32, threshold float64, limit int) ([]RegulationRow, error) {
	f.hit("match_regulations")
	return f.vectorRegs, f.vectorErr
}

func (f *fakeStore) MatchDesignKnowledge(ctx context.Context, vector []float32, threshold float64, limit int) ([]DocRow, error) {
	f.hit("match_design")
	return f.vectorDesign, f.vectorErr
}

func (f *fakeStore) MatchHealthSafety(ctx context.Context, vector []float32, threshold float64, limit int) ([]DocRow, error) {
	f.hit("match_safety")
	return f.vectorSafety, f.vectorErr
}

func (f *fakeStore) KeywordRegulations(ctx context.Context, keyword string, limit int) ([]RegulationRow, error) {
	f.hit("keyword_regulations")
	return f.keywordRegs, f.keywordErr
}

func (f *fakeStore) KeywordDesignKnowledge(ctx context.Context, keyword string, limit int) ([]DocRow, error) {
	f.hit("keyword_design")
	return f.keywordDesign, f.keywordErr
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type recordedSearch struct {
	tier string
	err  error
}

type fakeRecorder struct {
	mu        sync.Mutex
	searches  []recordedSearch
	cacheHits int
}

func (r *fakeRecorder) RecordSearch(tier string, elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches = append(r.searches, recordedSearch{tier: tier, err: err})
}

func (r *fakeRecorder) RecordCacheHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheHits++
}

func regs(prefix string, n int, similarity float64) []RegulationRow {
	out := make([]RegulationRow, n)
	for i := range out {
		out[i] = RegulationRow{ID: fmt.Sprintf("%s-%d", prefix, i), Content: "content", Similarity: similarity}
	}
	return out
}

func docs(prefix string, n int) []DocRow {
	out := make([]DocRow, n)
	for i := range out {
		out[i] = DocRow{ID: fmt.Sprintf("%s-%d", prefix, i), Content: "doc", Similarity: 0.7}
	}
	return out
}

func exactCorpus(n int) ([]string, map[string]RegulationRow) {
	ids := make([]string, n)
	m := make(map[string]RegulationRow, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("411.3.%d", i)
		m[ids[i]] = RegulationRow{ID: ids[i], Section: "411", Content: "exact content"}
	}
	return ids, m
}

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func designEnvelope(t *testing.T) *envelope.ContextEnvelope {
	t.Helper()
	return envelope.New("req-1", "", envelope.QueryIntent{PrimaryGoal: envelope.GoalDesign, Complexity: envelope.ComplexitySimple}, baseTime)
}

func newTestEngine(store Store, emb *fakeEmbedder) *Engine {
	return NewEngine(store, emb, config.Default().Retrieval, WithClock(func() time.Time { return baseTime }))
}

func TestSearch_ExactSufficientSkipsVector(t *testing.T) {
	ids, corpus := exactCorpus(5)
	store := &fakeStore{exactIDs: ids, regulations: corpus, vectorRegs: regs("v", 3, 0.8)}
	emb := &fakeEmbedder{}

	res, delta, err := newTestEngine(store, emb).Search(context.Background(), designEnvelope(t), Query{CircuitType: "socket", PowerW: 7200}, nil)
	require.NoError(t, err)

	assert.Len(t, res.Regulations, 5)
	assert.Equal(t, MethodExact, res.SearchMethod)
	assert.False(t, res.Stats.Vector.Ran)
	assert.Zero(t, emb.calls)
	assert.Zero(t, store.count("match_regulations"))
	assert.Zero(t, store.count("match_design"))
	for _, r := range res.Regulations {
		assert.Equal(t, envelope.SourceExact, r.Source)
		assert.Equal(t, 100.0, r.Relevance)
	}
	assert.Equal(t, 2, delta.RAGCallCount)
	assert.Nil(t, delta.Embedding)
}

func TestSearch_EmbeddingCache(t *testing.T) {
	tests := []struct {
		name          string
		age           time.Duration
		wantEmbedCall bool
	}{
		{name: "four minutes old reused", age: 4 * time.Minute, wantEmbedCall: false},
		{name: "six minutes old regenerated", age: 6 * time.Minute, wantEmbedCall: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{vectorRegs: regs("v", 4, 0.8), vectorDesign: docs("d", 2)}
			emb := &fakeEmbedder{}
			rec := &fakeRecorder{}

			env := envelope.Merge(designEnvelope(t), envelope.Delta{Embedding: &envelope.CachedEmbedding{
				Query:       "ring final circuit",
				Vector:      []float32{0.5, 0.5, 0.5},
				GeneratedAt: baseTime.Add(-tt.age),
			}})

			res, delta, err := newTestEngine(store, emb).Search(context.Background(), env, Query{Expanded: "ring final circuit"}, rec)
			require.NoError(t, err)

			assert.Equal(t, tt.wantEmbedCall, emb.calls == 1)
			assert.Equal(t, !tt.wantEmbedCall, res.Stats.CacheHit)
			if tt.wantEmbedCall {
				require.NotNil(t, delta.Embedding)
				assert.Equal(t, baseTime, delta.Embedding.GeneratedAt)
				assert.Zero(t, rec.cacheHits)
			} else {
				assert.Nil(t, delta.Embedding)
				assert.Equal(t, 1, rec.cacheHits)
			}
		})
	}
}

func TestSearch_DifferentQueryMissesCache(t *testing.T) {
	store := &fakeStore{vectorRegs: regs("v", 4, 0.8)}
	emb := &fakeEmbedder{}
	env := envelope.Merge(designEnvelope(t), envelope.Delta{Embedding: &envelope.CachedEmbedding{
		Query: "lighting", Vector: []float32{1}, GeneratedAt: baseTime,
	}})

	_, _, err := newTestEngine(store, emb).Search(context.Background(), env, Query{Expanded: "shower"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
}

func TestSearch_DedupAcrossTiers(t *testing.T) {
	ids, corpus := exactCorpus(2)
	vector := append(regs("v", 2, 0.9), RegulationRow{ID: ids[0], Content: "stale vector copy", Similarity: 0.99})
	store := &fakeStore{exactIDs: ids, regulations: corpus, vectorRegs: vector, vectorDesign: docs("d", 1)}

	res, _, err := newTestEngine(store, &fakeEmbedder{}).Search(context.Background(), designEnvelope(t), Query{CircuitType: "socket"}, nil)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, r := range res.Regulations {
		assert.False(t, seen[r.ID], "duplicate regulation %s", r.ID)
		seen[r.ID] = true
	}
	assert.Len(t, res.Regulations, 4)
	assert.Equal(t, "exact content", res.Regulations[0].Content, "exact tier wins for content")
	assert.Equal(t, MethodHybrid, res.SearchMethod)
}

func TestSearch_HealthSafetyOnlyWhenPrioritised(t *testing.T) {
	store := &fakeStore{vectorRegs: regs("v", 4, 0.8), vectorSafety: docs("hs", 2)}
	engine := newTestEngine(store, &fakeEmbedder{})

	_, _, err := engine.Search(context.Background(), designEnvelope(t), Query{Expanded: "design"}, nil)
	require.NoError(t, err)
	assert.Zero(t, store.count("match_safety"), "design goal weights health and safety at 40")

	safety := envelope.New("req-2", "", envelope.QueryIntent{PrimaryGoal: envelope.GoalSafety}, baseTime)
	res, _, err := engine.Search(context.Background(), safety, Query{Expanded: "bonding"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, store.count("match_safety"))
	assert.Len(t, res.DesignDocs, 2)
}

func TestSearch_KeywordFallback(t *testing.T) {
	t.Run("runs when evidence is thin and a circuit type is known", func(t *testing.T) {
		store := &fakeStore{
			vectorRegs:    regs("v", 1, 0.6),
			keywordRegs:   regs("k", 3, 0),
			keywordDesign: docs("kd", 2),
		}
		res, _, err := newTestEngine(store, &fakeEmbedder{}).Search(context.Background(), designEnvelope(t), Query{CircuitType: "shower"}, nil)
		require.NoError(t, err)

		assert.True(t, res.Stats.Keyword.Ran)
		assert.Len(t, res.Regulations, 4)
		for _, r := range res.Regulations[1:] {
			assert.Equal(t, envelope.SourceKeyword, r.Source)
			assert.Equal(t, 70.0, r.Relevance)
		}
		assert.Equal(t, MethodHybrid, res.SearchMethod)
	})

	t.Run("skipped without a circuit type", func(t *testing.T) {
		store := &fakeStore{keywordRegs: regs("k", 3, 0)}
		res, _, err := newTestEngine(store, &fakeEmbedder{}).Search(context.Background(), designEnvelope(t), Query{Terms: []string{"earthing"}}, nil)
		require.NoError(t, err)
		assert.False(t, res.Stats.Keyword.Ran)
		assert.Equal(t, MethodNone, res.SearchMethod)
	})
}

func TestSearch_FinalCaps(t *testing.T) {
	store := &fakeStore{vectorRegs: regs("v", 20, 0.8), vectorDesign: docs("d", 20)}
	res, _, err := newTestEngine(store, &fakeEmbedder{}).Search(context.Background(), designEnvelope(t), Query{Expanded: "many"}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Regulations, 15)
	assert.Len(t, res.DesignDocs, 12)
}

func TestSearch_TierFailures(t *testing.T) {
	boom := errors.New("backend unreachable")

	t.Run("vector failure degrades to other tiers", func(t *testing.T) {
		ids, corpus := exactCorpus(2)
		store := &fakeStore{exactIDs: ids, regulations: corpus, vectorErr: boom}
		rec := &fakeRecorder{}

		res, _, err := newTestEngine(store, &fakeEmbedder{}).Search(context.Background(), designEnvelope(t), Query{CircuitType: "socket"}, rec)
		require.NoError(t, err)
		assert.True(t, res.Stats.Vector.Failed)
		assert.Len(t, res.Regulations, 2)
		assert.Len(t, rec.searches, 3)
	})

	t.Run("embedding failure fails the vector tier", func(t *testing.T) {
		store := &fakeStore{keywordRegs: regs("k", 1, 0)}
		res, _, err := newTestEngine(store, &fakeEmbedder{err: boom}).Search(context.Background(), designEnvelope(t), Query{CircuitType: "socket"}, nil)
		require.NoError(t, err)
		assert.True(t, res.Stats.Vector.Failed)
		assert.Contains(t, res.Stats.Vector.Error, "embedding failed")
		assert.Equal(t, MethodKeyword, res.SearchMethod)
	})

	t.Run("every tier failing is reported", func(t *testing.T) {
		store := &fakeStore{exactErr: boom, vectorErr: boom, keywordErr: boom}
		res, _, err := newTestEngine(store, &fakeEmbedder{}).Search(context.Background(), designEnvelope(t), Query{CircuitType: "socket"}, nil)
		assert.ErrorIs(t, err, ErrAllTiersFailed)
		assert.Empty(t, res.Regulations)
	})

	t.Run("empty results are not a failure", func(t *testing.T) {
		store := &fakeStore{}
		_, _, err := newTestEngine(store, &fakeEmbedder{}).Search(context.Background(), designEnvelope(t), Query{CircuitType: "socket"}, nil)
		assert.NoError(t, err)
	})
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,2.25]", vectorLiteral([]float32{0.5, -1, 2.25}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `%100\% rcd%`, likePattern(" 100% rcd "))
	assert.Equal(t, `%ev\_charger%`, likePattern("ev_charger"))
}
