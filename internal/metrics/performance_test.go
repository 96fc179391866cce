package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// steppingClock advances by step every time it is read
type steppingClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *steppingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func TestMonitor_Finalize(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	clock := &steppingClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), step: 100 * time.Millisecond}
	m := NewMonitor("req-42", zap.New(core), WithMonitorClock(clock.now))

	stop := m.StartStage("extraction")
	stop()
	stop() // second call is a no-op

	m.RecordSearch("exact", 10*time.Millisecond, nil)
	m.RecordSearch("vector", 30*time.Millisecond, errors.New("down"))
	m.RecordCacheHit()
	m.RecordCompletion(1200)
	m.RecordCompletion(800)
	m.RecordBatch(2*time.Second, nil)
	m.RecordBatch(4*time.Second, errors.New("timeout"))
	m.RecordRetry()

	pm := m.Finalize()

	assert.Equal(t, "req-42", pm.RequestID)
	assert.Equal(t, "completed", pm.Status)
	assert.Equal(t, 100*time.Millisecond, pm.Stages["extraction"])
	assert.Equal(t, 2, pm.Retrieval.Searches)
	assert.Equal(t, 1, pm.Retrieval.Failures)
	assert.Equal(t, 1, pm.Retrieval.CacheHits)
	assert.Equal(t, 20*time.Millisecond, pm.Retrieval.AvgLatency)
	assert.Equal(t, 2000, pm.Completion.Tokens)
	assert.Equal(t, 2, pm.Completion.Batches)
	assert.Equal(t, 1, pm.Completion.FailedBatches)
	assert.Equal(t, 1, pm.Completion.Retries)
	assert.Equal(t, 3*time.Second, pm.Completion.AvgBatchLatency)
	assert.Positive(t, pm.TotalDuration)

	entries := logs.FilterMessage("request performance").All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
}

func TestMonitor_FinalizeOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewMonitor("req-1", zap.New(core))
	m.RecordCompletion(10)

	first := m.Finalize()
	m.RecordCompletion(99)
	m.MarkFailed()
	second := m.Finalize()

	assert.Equal(t, first, second)
	assert.Equal(t, 10, second.Completion.Tokens)
	assert.Equal(t, "completed", second.Status)
	assert.Equal(t, 1, logs.Len())

	second.Stages["mutated"] = time.Second
	assert.NotContains(t, m.Finalize().Stages, "mutated")
}

func TestMonitor_ConcurrentRecording(t *testing.T) {
	m := NewMonitor("req-c", nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stop := m.StartStage("design")
			m.RecordSearch("vector", time.Millisecond, nil)
			m.RecordBatch(time.Millisecond, nil)
			m.RecordCompletion(1)
			stop()
		}()
	}
	wg.Wait()

	pm := m.Finalize()
	assert.Equal(t, 50, pm.Retrieval.Searches)
	assert.Equal(t, 50, pm.Completion.Batches)
	assert.Equal(t, 50, pm.Completion.Tokens)
}

func TestMonitor_FeedsPrometheus(t *testing.T) {
	before := testutil.ToFloat64(retrievalSearchesTotal.WithLabelValues("keyword", "error"))
	retriesBefore := testutil.ToFloat64(completionRetriesTotal)

	m := NewMonitor("req-p", nil)
	m.RecordSearch("keyword", time.Millisecond, errors.New("boom"))
	m.RecordRetry()

	assert.Equal(t, before+1, testutil.ToFloat64(retrievalSearchesTotal.WithLabelValues("keyword", "error")))
	assert.Equal(t, retriesBefore+1, testutil.ToFloat64(completionRetriesTotal))
}
