package metrics

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RetrievalStats summarises retrieval activity for one request
type RetrievalStats struct {
	Searches   int           `json:"searches"`
	Failures   int           `json:"failures"`
	CacheHits  int           `json:"cache_hits"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// CompletionStats summarises completion-service activity for one request
type CompletionStats struct {
	Tokens          int           `json:"tokens"`
	Batches         int           `json:"batches"`
	FailedBatches   int           `json:"failed_batches"`
	Retries         int           `json:"retries"`
	AvgBatchLatency time.Duration `json:"avg_batch_latency"`
}

// PerformanceMetrics is the finalized record for one request
type PerformanceMetrics struct {
	RequestID     string                   `json:"request_id"`
	TotalDuration time.Duration            `json:"total_duration"`
	Stages        map[string]time.Duration `json:"stages"`
	Retrieval     RetrievalStats           `json:"retrieval"`
	Completion    CompletionStats          `json:"completion"`
	Status        string                   `json:"status"`
}

// Monitor accumulates stage timings and call counts for one request. It is
// safe for concurrent use. Records made after Finalize are dropped.
type Monitor struct {
	mu        sync.Mutex
	requestID string
	start     time.Time
	now       func() time.Time
	logger    *zap.Logger

	stages       map[string]time.Duration
	searches     int
	searchFails  int
	searchTotal  time.Duration
	cacheHits    int
	tokens       int
	batches      int
	batchFails   int
	batchTotal   time.Duration
	retries      int
	status       string
	finalizeOnce sync.Once
	finalized    PerformanceMetrics
	isFinalized  bool
}

type MonitorOption func(*Monitor)

// WithMonitorClock overrides the monitor's clock
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

func NewMonitor(requestID string, logger *zap.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		requestID: requestID,
		now:       time.Now,
		logger:    logger,
		stages:    make(map[string]time.Duration),
		status:    "completed",
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.start = m.now()
	return m
}

// StartStage starts timing name and returns the function that stops it.
// Repeated stages accumulate.
func (m *Monitor) StartStage(name string) func() {
	began := m.now()
	var once sync.Once
	return func() {
		once.Do(func() {
			elapsed := m.now().Sub(began)
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.isFinalized {
				return
			}
			m.stages[name] += elapsed
			stageDurationSeconds.WithLabelValues(name).Observe(elapsed.Seconds())
		})
	}
}

// RecordSearch records one retrieval tier execution
func (m *Monitor) RecordSearch(tier string, elapsed time.Duration, err error) {
	observeSearch(tier, elapsed, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isFinalized {
		return
	}
	m.searches++
	m.searchTotal += elapsed
	if err != nil {
		m.searchFails++
	}
}

// RecordCacheHit records an embedding served from the request cache
func (m *Monitor) RecordCacheHit() {
	embeddingCacheHitsTotal.Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isFinalized {
		return
	}
	m.cacheHits++
}

// RecordCompletion adds tokens consumed by a completion call
func (m *Monitor) RecordCompletion(tokens int) {
	completionTokensTotal.Add(float64(tokens))
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isFinalized {
		return
	}
	m.tokens += tokens
}

// RecordBatch records one design chunk
func (m *Monitor) RecordBatch(elapsed time.Duration, err error) {
	observeBatch(elapsed, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isFinalized {
		return
	}
	m.batches++
	m.batchTotal += elapsed
	if err != nil {
		m.batchFails++
	}
}

// RecordRetry records a completion retry
func (m *Monitor) RecordRetry() {
	completionRetriesTotal.Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isFinalized {
		return
	}
	m.retries++
}

// MarkFailed sets the final status reported by Finalize
func (m *Monitor) MarkFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isFinalized {
		m.status = "failed"
	}
}

// Finalize freezes the metrics, logs them and feeds the request histograms.
// Only the first call does work; later calls return the same value.
func (m *Monitor) Finalize() PerformanceMetrics {
	m.finalizeOnce.Do(func() {
		m.mu.Lock()
		stages := make(map[string]time.Duration, len(m.stages))
		for k, v := range m.stages {
			stages[k] = v
		}
		pm := PerformanceMetrics{
			RequestID:     m.requestID,
			TotalDuration: m.now().Sub(m.start),
			Stages:        stages,
			Retrieval: RetrievalStats{
				Searches:   m.searches,
				Failures:   m.searchFails,
				CacheHits:  m.cacheHits,
				AvgLatency: average(m.searchTotal, m.searches),
			},
			Completion: CompletionStats{
				Tokens:          m.tokens,
				Batches:         m.batches,
				FailedBatches:   m.batchFails,
				Retries:         m.retries,
				AvgBatchLatency: average(m.batchTotal, m.batches),
			},
			Status: m.status,
		}
		m.finalized = pm
		m.isFinalized = true
		m.mu.Unlock()

		observeRequest(pm.Status, pm.TotalDuration)

		fields := []zap.Field{
			zap.String("request_id", pm.RequestID),
			zap.String("status", pm.Status),
			zap.Duration("total", pm.TotalDuration),
			zap.Int("searches", pm.Retrieval.Searches),
			zap.Int("search_failures", pm.Retrieval.Failures),
			zap.Int("cache_hits", pm.Retrieval.CacheHits),
			zap.Duration("avg_search", pm.Retrieval.AvgLatency),
			zap.Int("tokens", pm.Completion.Tokens),
			zap.Int("batches", pm.Completion.Batches),
			zap.Int("retries", pm.Completion.Retries),
			zap.Duration("avg_batch", pm.Completion.AvgBatchLatency),
		}
		for name, d := range pm.Stages {
			fields = append(fields, zap.Duration("stage."+name, d))
		}
		m.logger.Info("request performance", fields...)
	})

	// callers get their own copy of the stage map
	out := m.finalized
	out.Stages = make(map[string]time.Duration, len(m.finalized.Stages))
	for k, v := range m.finalized.Stages {
		out.Stages[k] = v
	}
	return out
}

func average(total time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
