package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordDelivered does nothing.
func (NoopMetrics) RecordDelivered(_ context.Context, _ bool) {}

// RecordFailed does nothing.
func (NoopMetrics) RecordFailed(_ context.Context, _ error) {}

// RecordDropped does nothing.
func (NoopMetrics) RecordDropped(_ context.Context) {}

// RecordDrain does nothing.
func (NoopMetrics) RecordDrain(_ context.Context, _, _ int, _ time.Duration) {}

// RecordPurge does nothing.
func (NoopMetrics) RecordPurge(_ context.Context, _ int, _ bool) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartDrainSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartDrainSpan(ctx context.Context, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartPostSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartPostSpan(ctx context.Context, _ string, _ bool) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
