// Package processor drains the durable queue through a Transport.
//
// A drain reads up to BatchSize eligible entries oldest first, posts each in
// order, and records the outcome: delivered entries are removed (and their
// replies cached when a response is expected), failed entries are kept or
// dropped as the RetryPolicy decides. Drains on one Processor never overlap.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	pqerrors "github.com/randalmurphal/postqueue/pkg/postqueue/errors"
	"github.com/randalmurphal/postqueue/pkg/postqueue/event"
	"github.com/randalmurphal/postqueue/pkg/postqueue/observability"
	"github.com/randalmurphal/postqueue/pkg/postqueue/store"
	"github.com/randalmurphal/postqueue/pkg/postqueue/transport"
)

// Defaults for Config.
const (
	DefaultBatchSize = 50
	DefaultItemDelay = 100 * time.Millisecond
)

// ErrProcessorClosed is returned by Start after Close.
var ErrProcessorClosed = errors.New("processor closed")

// Config configures a Processor.
type Config struct {
	// BatchSize is the maximum number of entries per drain.
	// Default: 50
	BatchSize int

	// ItemDelay is the minimum spacing between posts within a drain.
	// Default: 100ms. Negative disables spacing.
	ItemDelay time.Duration

	// Retry decides what happens to an entry after a failed post.
	// Default: errors.RetryForever (keep, no delay)
	Retry pqerrors.RetryPolicy

	// Logger for drain progress. Default: slog.Default()
	Logger *slog.Logger

	// Metrics records delivery outcomes. Default: observability.NoopMetrics{}
	Metrics observability.MetricsRecorder

	// Spans wraps each drain in a span. Default: observability.NoopSpanManager{}
	Spans observability.SpanManager

	// Now is the clock used for retry deadlines. Default: time.Now
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.ItemDelay == 0 {
		c.ItemDelay = DefaultItemDelay
	}
	if c.Retry == nil {
		c.Retry = pqerrors.RetryForever
	}
	if c.Metrics == nil {
		c.Metrics = observability.NoopMetrics{}
	}
	if c.Spans == nil {
		c.Spans = observability.NoopSpanManager{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	c.Logger = observability.Component(c.Logger, "processor")
	return c
}

// Result summarizes one drain.
type Result struct {
	// Found is the number of entries read from the store.
	Found int
	// Processed is the number of entries posted (less than Found if the
	// drain was cancelled).
	Processed  int
	Successful int
	Failed     int
	// Dropped counts failed entries removed by the retry policy.
	// They are also counted in Failed.
	Dropped  int
	Duration time.Duration
}

// Processor drains a store through a transport.
type Processor struct {
	store     store.Store
	transport transport.Transport
	events    event.Emitter
	cfg       Config

	// sem serializes drains.
	sem *semaphore.Weighted

	// ctx is the parent of background drains; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Processor. events may be nil.
func New(s store.Store, t transport.Transport, events event.Emitter, cfg Config) *Processor {
	if events == nil {
		events = event.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		store:     s,
		transport: t,
		events:    events,
		cfg:       cfg.withDefaults(),
		sem:       semaphore.NewWeighted(1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Drain runs one drain on the calling goroutine and emits its events with
// delivery d. It waits for any running drain to finish first.
//
// Per-entry failures are not errors; they are reported through events and
// the Result. An error is returned only when the queue could not be read or
// ctx ended before or during the drain.
func (p *Processor) Drain(ctx context.Context, d event.Delivery) (Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("acquire drain: %w", err)
	}
	defer p.sem.Release(1)

	done := observability.TimedOperation()
	start := time.Now()

	ctx, span := p.cfg.Spans.StartDrainSpan(ctx, p.cfg.BatchSize)

	p.events.Emit(d, event.TypeQueueStart, "Queue processing started")

	var res Result
	entries, err := p.store.DrainBatch(ctx, p.cfg.BatchSize)
	if err != nil {
		observability.LogDrainError(p.cfg.Logger, err)
		p.events.Emit(d, event.TypeQueueStatus, "Failed to read queue: "+err.Error())
		p.events.Emit(d, event.TypeQueueComplete, completeMessage(res))
		p.cfg.Spans.EndSpanWithError(span, err)
		return res, fmt.Errorf("drain batch: %w", err)
	}

	res.Found = len(entries)
	observability.LogDrainStart(p.cfg.Logger, res.Found)
	p.events.Emit(d, event.TypeQueueStatus, fmt.Sprintf("Found %d entries", res.Found))

	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.cfg.ItemDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(p.cfg.ItemDelay), 1)
	}

	var drainErr error
	for _, entry := range entries {
		if err := limiter.Wait(ctx); err != nil {
			drainErr = err
			break
		}

		res.Processed++
		p.processEntry(ctx, d, entry, &res)
	}

	res.Duration = time.Since(start)
	p.cfg.Metrics.RecordDrain(ctx, res.Successful, res.Processed, res.Duration)
	observability.LogDrainComplete(p.cfg.Logger, res.Successful, res.Processed, done())
	p.events.Emit(d, event.TypeQueueComplete, completeMessage(res))

	span.SetAttributes(
		attribute.Int("queue.found", res.Found),
		attribute.Int("queue.successful", res.Successful),
	)
	p.cfg.Spans.EndSpanWithError(span, drainErr)

	if drainErr != nil {
		return res, fmt.Errorf("drain interrupted: %w", drainErr)
	}
	return res, nil
}

func (p *Processor) processEntry(ctx context.Context, d event.Delivery, entry store.QueueEntry, res *Result) {
	logger := observability.EnrichLogger(p.cfg.Logger, entry.ID, entry.URL, entry.Attempts+1)
	done := observability.TimedOperation()

	if err := p.deliver(ctx, entry); err != nil {
		res.Failed++
		p.cfg.Metrics.RecordFailed(ctx, err)
		p.events.Emit(d, event.TypeRequestFailed, fmt.Sprintf("Request failed, ID: %d", entry.ID))
		p.handleFailure(ctx, d, logger, entry, err, res)
		return
	}

	res.Successful++
	p.cfg.Metrics.RecordDelivered(ctx, entry.ExpectResponse)
	observability.LogDelivered(logger, entry.ID, done())

	// A failed removal means the entry is posted again on the next drain.
	if err := p.store.Remove(ctx, entry.ID); err != nil {
		observability.LogStoreError(logger, "remove", entry.ID, err)
	}
	p.events.Emit(d, event.TypeRequestSuccess, fmt.Sprintf("Request sent, ID: %d", entry.ID))
}

// deliver posts one entry and caches its reply when one is expected.
func (p *Processor) deliver(ctx context.Context, entry store.QueueEntry) error {
	if !entry.ExpectResponse {
		_, err := p.transport.Post(ctx, entry.URL, entry.Body)
		return err
	}

	body, err := p.transport.PostWithResponse(ctx, entry.URL, entry.Body)
	if err != nil {
		return err
	}
	if err := p.store.UpsertResponse(ctx, entry.URL, entry.Body, body); err != nil {
		return fmt.Errorf("cache response: %w", err)
	}
	return nil
}

func (p *Processor) handleFailure(ctx context.Context, d event.Delivery, logger *slog.Logger, entry store.QueueEntry, cause error, res *Result) {
	attempt := entry.Attempts + 1
	decision := p.cfg.Retry.Decide(attempt, cause)

	if decision.Action == pqerrors.ActionDrop {
		if err := p.store.Remove(ctx, entry.ID); err != nil {
			observability.LogStoreError(logger, "remove", entry.ID, err)
			return
		}
		res.Dropped++
		p.cfg.Metrics.RecordDropped(ctx)
		observability.LogDropped(logger, entry.ID, attempt, cause)
		p.cfg.Spans.AddSpanEvent(ctx, "entry.dropped", attribute.Int64("entry_id", entry.ID))
		p.events.Emit(d, event.TypeRequestDropped,
			fmt.Sprintf("Request dropped after %d attempts, ID: %d", attempt, entry.ID))
		return
	}

	var notBefore time.Time
	if decision.Delay > 0 {
		notBefore = p.cfg.Now().Add(decision.Delay)
	}
	if err := p.store.MarkFailed(ctx, entry.ID, notBefore); err != nil {
		observability.LogStoreError(logger, "mark_failed", entry.ID, err)
	}
	observability.LogDeliveryError(logger, entry.ID, cause, decision.Delay)
}

func completeMessage(res Result) string {
	return fmt.Sprintf("Processing complete. Successful: %d, Total: %d", res.Successful, res.Processed)
}

// Start runs a drain on a new goroutine and returns immediately.
// It emits PROCESS_QUEUE_START, then PROCESS_QUEUE_SUCCESS once the worker
// is running, or PROCESS_QUEUE_FAILED if the processor is closed.
func (p *Processor) Start(d event.Delivery) error {
	p.events.Emit(d, event.TypeProcessQueueStart, "Starting background queue processing")

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.events.Emit(d, event.TypeProcessQueueFailed, "Failed to start background worker")
		return ErrProcessorClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if _, err := p.Drain(p.ctx, d); err != nil && !errors.Is(err, context.Canceled) {
			p.cfg.Logger.Warn("background drain failed", slog.String("error", err.Error()))
		}
	}()

	p.events.Emit(d, event.TypeProcessQueueSuccess, "Background worker started")
	return nil
}

// Wait blocks until every drain started with Start has returned.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Close stops accepting Start calls and waits for background drains.
// If ctx ends first, running drains are cancelled (entries not yet posted
// stay queued) and ctx's error is returned after they exit.
func (p *Processor) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-finished
		return ctx.Err()
	}
}
