package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	pqerrors "github.com/randalmurphal/postqueue/pkg/postqueue/errors"
)

// MetricsRecorder records queue metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDelivered records an entry delivered and removed from the queue.
	RecordDelivered(ctx context.Context, expectResponse bool)

	// RecordFailed records a failed delivery attempt.
	RecordFailed(ctx context.Context, err error)

	// RecordDropped records an entry removed by the retry policy.
	RecordDropped(ctx context.Context)

	// RecordDrain records a completed drain.
	RecordDrain(ctx context.Context, successful, total int, duration time.Duration)

	// RecordPurge records rows deleted by retention.
	RecordPurge(ctx context.Context, deleted int, includeResponses bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	delivered    metric.Int64Counter
	failed       metric.Int64Counter
	dropped      metric.Int64Counter
	drainLatency metric.Float64Histogram
	drainItems   metric.Int64Histogram
	purged       metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("postqueue")

	delivered, err := meter.Int64Counter("postqueue.requests.delivered",
		metric.WithDescription("Number of queued requests delivered"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter("postqueue.requests.failed",
		metric.WithDescription("Number of failed delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("postqueue.requests.dropped",
		metric.WithDescription("Number of queued requests dropped by the retry policy"),
	)
	if err != nil {
		return nil, err
	}

	drainLatency, err := meter.Float64Histogram("postqueue.drain.latency_ms",
		metric.WithDescription("Queue drain latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	drainItems, err := meter.Int64Histogram("postqueue.drain.items",
		metric.WithDescription("Entries examined per drain"),
	)
	if err != nil {
		return nil, err
	}

	purged, err := meter.Int64Counter("postqueue.retention.purged",
		metric.WithDescription("Rows deleted by retention"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		delivered:    delivered,
		failed:       failed,
		dropped:      dropped,
		drainLatency: drainLatency,
		drainItems:   drainItems,
		purged:       purged,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordDelivered records a delivered entry.
func (m *otelMetrics) RecordDelivered(ctx context.Context, expectResponse bool) {
	m.delivered.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("expect_response", expectResponse),
	))
}

// RecordFailed records a failed attempt, tagged with the error category.
func (m *otelMetrics) RecordFailed(ctx context.Context, err error) {
	m.failed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", pqerrors.Categorize(err).String()),
	))
}

// RecordDropped records a dropped entry.
func (m *otelMetrics) RecordDropped(ctx context.Context) {
	m.dropped.Add(ctx, 1)
}

// RecordDrain records a drain.
func (m *otelMetrics) RecordDrain(ctx context.Context, successful, total int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("complete", successful == total),
	}
	m.drainLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.drainItems.Record(ctx, int64(total), metric.WithAttributes(attrs...))
}

// RecordPurge records a retention purge.
func (m *otelMetrics) RecordPurge(ctx context.Context, deleted int, includeResponses bool) {
	m.purged.Add(ctx, int64(deleted), metric.WithAttributes(
		attribute.Bool("include_responses", includeResponses),
	))
}
