package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_designer_requests_total",
			Help: "Total number of design requests",
		},
		[]string{"status"}, // status: completed, failed
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "circuit_designer_request_duration_seconds",
			Help:    "Design request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 240},
		},
		[]string{"status"},
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "circuit_designer_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	retrievalSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_designer_retrieval_searches_total",
			Help: "Total retrieval tier executions",
		},
		[]string{"tier", "status"}, // status: success, error
	)

	retrievalDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "circuit_designer_retrieval_duration_seconds",
			Help:    "Retrieval tier duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"tier"},
	)

	embeddingCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "circuit_designer_embedding_cache_hits_total",
			Help: "Query embeddings served from the request cache",
		},
	)

	batchChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_designer_batch_chunks_total",
			Help: "Total design chunks dispatched to the completion service",
		},
		[]string{"status"}, // status: success, error
	)

	batchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "circuit_designer_batch_duration_seconds",
			Help:    "Design chunk duration in seconds",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120},
		},
	)

	completionTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "circuit_designer_completion_tokens_total",
			Help: "Tokens consumed by completion calls",
		},
	)

	completionRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "circuit_designer_completion_retries_total",
			Help: "Completion calls retried after a transient failure",
		},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func observeSearch(tier string, elapsed time.Duration, err error) {
	retrievalSearchesTotal.WithLabelValues(tier, statusLabel(err)).Inc()
	retrievalDurationSeconds.WithLabelValues(tier).Observe(elapsed.Seconds())
}

func observeBatch(elapsed time.Duration, err error) {
	batchChunksTotal.WithLabelValues(statusLabel(err)).Inc()
	batchDurationSeconds.Observe(elapsed.Seconds())
}

func observeRequest(status string, elapsed time.Duration) {
	requestsTotal.WithLabelValues(status).Inc()
	requestDurationSeconds.WithLabelValues(status).Observe(elapsed.Seconds())
}
