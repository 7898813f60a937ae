package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordDelivered(ctx, true)
		m.RecordFailed(ctx, errors.New("x"))
		m.RecordFailed(ctx, nil)
		m.RecordDropped(ctx)
		m.RecordDrain(ctx, 0, 0, 0)
		m.RecordDrain(ctx, 1, 2, time.Second)
		m.RecordPurge(ctx, 3, true)
	})
}

func TestNoopSpanManager(t *testing.T) {
	var sm SpanManager = NoopSpanManager{}
	ctx := context.Background()

	t.Run("returns context unchanged", func(t *testing.T) {
		got, span := sm.StartDrainSpan(ctx, 10)
		assert.Equal(t, ctx, got)
		assert.NotNil(t, span)
		assert.False(t, span.IsRecording())

		got, span = sm.StartPostSpan(ctx, "http://x/", true)
		assert.Equal(t, ctx, got)
		assert.False(t, span.IsRecording())
	})

	t.Run("does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			_, span := sm.StartDrainSpan(ctx, 1)
			sm.AddSpanEvent(ctx, "event", attribute.String("k", "v"))
			sm.EndSpanWithError(span, errors.New("x"))
			sm.EndSpanWithError(nil, nil)
		})
	})
}
