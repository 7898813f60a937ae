package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the postqueue tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("postqueue")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartDrainSpan starts a span for one queue drain.
	StartDrainSpan(ctx context.Context, batchSize int) (context.Context, trace.Span)

	// StartPostSpan starts a span for one outbound POST.
	// Inside a drain it is a child of the drain span.
	StartPostSpan(ctx context.Context, url string, expectResponse bool) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartDrainSpan starts a span for one queue drain.
func (m *otelSpanManager) StartDrainSpan(ctx context.Context, batchSize int) (context.Context, trace.Span) {
	return StartDrainSpan(ctx, batchSize)
}

// StartPostSpan starts a span for one outbound POST.
func (m *otelSpanManager) StartPostSpan(ctx context.Context, url string, expectResponse bool) (context.Context, trace.Span) {
	return StartPostSpan(ctx, url, expectResponse)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// Convenience functions that operate on the global tracer.
// These are useful for simple cases where you don't need the interface.

// StartDrainSpan starts a span for one queue drain.
// Uses the global OTel tracer.
func StartDrainSpan(ctx context.Context, batchSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "postqueue.drain",
		trace.WithAttributes(
			attribute.Int("queue.batch_size", batchSize),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartPostSpan starts a client span for one outbound POST.
// Uses the global OTel tracer.
func StartPostSpan(ctx context.Context, url string, expectResponse bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "postqueue.post",
		trace.WithAttributes(
			attribute.String("http.request.method", "POST"),
			attribute.String("url.full", url),
			attribute.Bool("postqueue.expect_response", expectResponse),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
