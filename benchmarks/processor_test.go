package benchmarks

import (
	"context"
	"strings"
	"testing"

	"github.com/randalmurphal/postqueue/pkg/postqueue/codec"
	"github.com/randalmurphal/postqueue/pkg/postqueue/event"
	"github.com/randalmurphal/postqueue/pkg/postqueue/processor"
	"github.com/randalmurphal/postqueue/pkg/postqueue/store"
)

// okTransport accepts every post without touching the network.
type okTransport struct{}

func (okTransport) Post(context.Context, string, string) (int, error) { return 200, nil }

func (okTransport) PostWithResponse(_ context.Context, _, body string) (string, error) {
	return body, nil
}

// BenchmarkDrain measures draining a full batch, half expecting replies.
func BenchmarkDrain(b *testing.B) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	bus := event.NewBus(event.BusConfig{MaxQueued: 1})
	p := processor.New(s, okTransport{}, bus, processor.Config{ItemDelay: -1})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		for j := 0; j < processor.DefaultBatchSize; j++ {
			_, _ = s.Enqueue(ctx, "http://stats.example.com/ingest", body, j%2 == 0)
		}
		b.StartTimer()

		if _, err := p.Drain(ctx, event.DeliverAll); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCodec_RoundTrip measures UTF-16 conversion of a maximal body.
func BenchmarkCodec_RoundTrip(b *testing.B) {
	s := strings.Repeat("данные ", codec.MaxBodyUnits/7)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = codec.Decode(codec.EncodeZ(s))
	}
}

// BenchmarkCodec_Truncate measures truncation at the body limit.
func BenchmarkCodec_Truncate(b *testing.B) {
	s := strings.Repeat("😀", codec.MaxBodyUnits)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = codec.Truncate(s, codec.MaxBodyUnits)
	}
}
