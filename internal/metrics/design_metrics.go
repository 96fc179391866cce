package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("design-metrics")

// DesignMetrics provides otel metrics for design requests
type DesignMetrics struct {
	requestsStartedCounter   metric.Int64Counter
	requestsCompletedCounter metric.Int64Counter
	requestsFailedCounter    metric.Int64Counter
	circuitsDesignedCounter  metric.Int64Counter
	requestDurationHistogram metric.Float64Histogram
	requestsActiveGauge      metric.Int64UpDownCounter
}

// NewDesignMetrics creates a new design metrics collector
func NewDesignMetrics() (*DesignMetrics, error) {
	requestsStartedCounter, err := meter.Int64Counter(
		"circuit_designer.requests.started",
		metric.WithDescription("Total number of design requests started"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestsCompletedCounter, err := meter.Int64Counter(
		"circuit_designer.requests.completed",
		metric.WithDescription("Total number of design requests that streamed a done chunk"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestsFailedCounter, err := meter.Int64Counter(
		"circuit_designer.requests.failed",
		metric.WithDescription("Total number of design requests that ended with a terminal error"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	circuitsDesignedCounter, err := meter.Int64Counter(
		"circuit_designer.circuits.designed",
		metric.WithDescription("Total number of circuit designs returned"),
		metric.WithUnit("{circuit}"),
	)
	if err != nil {
		return nil, err
	}

	requestDurationHistogram, err := meter.Float64Histogram(
		"circuit_designer.request.duration",
		metric.WithDescription("Duration of design requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestsActiveGauge, err := meter.Int64UpDownCounter(
		"circuit_designer.requests.active",
		metric.WithDescription("Number of design requests in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &DesignMetrics{
		requestsStartedCounter:   requestsStartedCounter,
		requestsCompletedCounter: requestsCompletedCounter,
		requestsFailedCounter:    requestsFailedCounter,
		circuitsDesignedCounter:  circuitsDesignedCounter,
		requestDurationHistogram: requestDurationHistogram,
		requestsActiveGauge:      requestsActiveGauge,
	}, nil
}

// RecordRequestStarted records a new design request
func (dm *DesignMetrics) RecordRequestStarted(ctx context.Context, mode string) {
	dm.requestsStartedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
		),
	)
	dm.requestsActiveGauge.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
		),
	)
}

// RecordRequestCompleted records a request that finished with designs
func (dm *DesignMetrics) RecordRequestCompleted(ctx context.Context, mode string, circuits int, duration time.Duration) {
	dm.requestsCompletedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", "completed"),
		),
	)
	dm.circuitsDesignedCounter.Add(ctx, int64(circuits),
		metric.WithAttributes(
			attribute.String("mode", mode),
		),
	)
	dm.requestDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", "completed"),
		),
	)
	dm.requestsActiveGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("mode", mode),
		),
	)
}

// RecordRequestFailed records a request that ended with a terminal error
func (dm *DesignMetrics) RecordRequestFailed(ctx context.Context, mode, errorCode string, duration time.Duration) {
	dm.requestsFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", "failed"),
			attribute.String("error.code", errorCode),
		),
	)
	dm.requestDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", "failed"),
		),
	)
	dm.requestsActiveGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("mode", mode),
		),
	)
}
