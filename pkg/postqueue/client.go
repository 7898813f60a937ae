package postqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/postqueue/pkg/postqueue/codec"
	"github.com/randalmurphal/postqueue/pkg/postqueue/event"
	"github.com/randalmurphal/postqueue/pkg/postqueue/observability"
	"github.com/randalmurphal/postqueue/pkg/postqueue/processor"
	"github.com/randalmurphal/postqueue/pkg/postqueue/retention"
	"github.com/randalmurphal/postqueue/pkg/postqueue/store"
	"github.com/randalmurphal/postqueue/pkg/postqueue/transport"
)

// Result codes returned by the integer entry points.
const (
	CodeOK    = 0
	CodeError = 1
)

// Texts returned by the string entry points instead of a reply body.
const (
	TextInvalidParameters = "ERROR: Invalid parameters"
	TextNoResponse        = "ERROR: No response found"
)

// ErrInvalidParameters indicates an empty URL or body.
var ErrInvalidParameters = errors.New("invalid parameters")

// Client is the queue library: a durable store, the processor that drains
// it, the retention manager and the event bus, behind the host entry points.
//
// Every entry point reports its outcome as a code or text and through
// events; none of them panics or returns a Go error.
type Client struct {
	store     store.Store
	bus       *event.Bus
	transport transport.Transport
	processor *processor.Processor
	retention *retention.Manager

	logger      *slog.Logger
	cacheDirect bool
}

// Open wires the components and emits LIBRARY_LOADED.
//
// Example:
//
//	client, err := postqueue.Open(postqueue.WithDatabasePath("queue.db"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
func Open(opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := observability.Component(cfg.logger, "postqueue")

	s := cfg.store
	if s == nil {
		path := cfg.dbPath
		if path == "" {
			path = store.DefaultPath()
		}
		sqlite, err := store.NewSQLiteStore(path, store.WithNowFunc(cfg.now))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s = sqlite
	}

	t := cfg.transport
	if t == nil {
		t = transport.NewHTTPTransport(
			transport.WithTimeout(cfg.timeout),
			transport.WithUserAgent(cfg.userAgent),
			transport.WithSpanManager(cfg.spans),
		)
	}

	bus := event.NewBus(event.BusConfig{
		MaxQueued: cfg.maxQueued,
		Logger:    cfg.logger,
		OnDrop: func(evt event.Event) {
			logger.Warn("event queue full, event dropped", slog.String("event_type", evt.Type))
		},
	})
	if cfg.callback != nil {
		bus.Register(cfg.callback)
	}

	c := &Client{
		store:     s,
		bus:       bus,
		transport: t,
		processor: processor.New(s, t, bus, processor.Config{
			BatchSize: cfg.batchSize,
			ItemDelay: cfg.itemDelay,
			Retry:     cfg.retry,
			Logger:    cfg.logger,
			Metrics:   cfg.metrics,
			Spans:     cfg.spans,
			Now:       cfg.now,
		}),
		retention: retention.NewManager(s,
			retention.WithNowFunc(cfg.now),
			retention.WithLogger(cfg.logger),
			retention.WithMetrics(cfg.metrics),
		),
		logger:      logger,
		cacheDirect: cfg.cacheDirect,
	}

	bus.Emit(event.DeliverAll, event.TypeLibraryLoaded, "Library loaded")
	return c, nil
}

// Close waits for background drains, emits LIBRARY_UNLOADED and closes the
// store. If ctx ends first, running drains are cancelled.
func (c *Client) Close(ctx context.Context) error {
	procErr := c.processor.Close(ctx)
	c.bus.Emit(event.DeliverAll, event.TypeLibraryUnloaded, "Library unloaded")
	storeErr := c.store.Close()
	return errors.Join(procErr, storeErr)
}

// SendRequest posts body to url immediately. Returns CodeOK on status 200,
// CodeError otherwise.
func (c *Client) SendRequest(ctx context.Context, url, body string, opts ...CallOption) int {
	cc := resolveCall(opts)
	c.bus.Emit(cc.delivery, event.TypeSendRequestStart, "Sending request")

	if url == "" || body == "" {
		c.bus.Emit(cc.delivery, event.TypeSendRequestFailed, "Request failed: "+ErrInvalidParameters.Error())
		return CodeError
	}
	url, body = clip(url, body)

	if _, err := c.transport.Post(ctx, url, body); err != nil {
		c.logger.Debug("direct send failed", slog.String("url", url), slog.String("error", err.Error()))
		c.bus.Emit(cc.delivery, event.TypeSendRequestFailed, "Request failed: "+errorText(err))
		return CodeError
	}

	c.bus.Emit(cc.delivery, event.TypeSendRequestSuccess, "Request sent")
	return CodeOK
}

// SendRequestWithResponse posts body to url immediately and returns the
// reply body, or an "ERROR:" text describing the failure.
func (c *Client) SendRequestWithResponse(ctx context.Context, url, body string, opts ...CallOption) string {
	cc := resolveCall(opts)
	c.bus.Emit(cc.delivery, event.TypeSendResponseStart, "Sending request with response")

	if url == "" || body == "" {
		c.bus.Emit(cc.delivery, event.TypeSendResponseFailed, TextInvalidParameters)
		return TextInvalidParameters
	}
	url, body = clip(url, body)

	reply, err := c.transport.PostWithResponse(ctx, url, body)
	if err != nil {
		text := errorText(err)
		c.bus.Emit(cc.delivery, event.TypeSendResponseFailed, text)
		return text
	}

	if c.cacheDirect {
		if err := c.store.UpsertResponse(ctx, url, body, reply); err != nil {
			observability.LogStoreError(c.logger, "upsert_response", 0, err)
		}
	}

	c.bus.Emit(cc.delivery, event.TypeSendResponseSuccess, "Request with response completed")
	return reply
}

// Enqueue stores a request for the next drain. Returns CodeOK once it is
// durable.
func (c *Client) Enqueue(ctx context.Context, url, body string, expectResponse bool, opts ...CallOption) int {
	cc := resolveCall(opts)

	if url == "" || body == "" {
		c.bus.Emit(cc.delivery, event.TypeQueueAddFailed, "Invalid parameters")
		return CodeError
	}
	url, body = clip(url, body)

	if _, err := c.store.Enqueue(ctx, url, body, expectResponse); err != nil {
		observability.LogStoreError(c.logger, "enqueue", 0, err)
		c.bus.Emit(cc.delivery, event.TypeQueueAddFailed, "Failed to add request to queue")
		return CodeError
	}

	msg := "Request queued without awaiting response"
	if expectResponse {
		msg = "Request queued awaiting response"
	}
	c.bus.Emit(cc.delivery, event.TypeQueueAddSuccess, msg)
	return CodeOK
}

// StartQueueProcessing starts a drain in the background and returns without
// waiting for it.
func (c *Client) StartQueueProcessing(opts ...CallOption) int {
	cc := resolveCall(opts)
	if err := c.processor.Start(cc.delivery); err != nil {
		return CodeError
	}
	return CodeOK
}

// ProcessQueue runs one drain on the calling goroutine.
func (c *Client) ProcessQueue(ctx context.Context, opts ...CallOption) (processor.Result, error) {
	cc := resolveCall(opts)
	return c.processor.Drain(ctx, cc.delivery)
}

// WaitForProcessing blocks until drains started by StartQueueProcessing
// have finished.
func (c *Client) WaitForProcessing() {
	c.processor.Wait()
}

// TakeResponse returns the cached reply for (url, body) and removes it from
// the cache. It returns TextNoResponse when nothing is cached.
func (c *Client) TakeResponse(ctx context.Context, url, body string, opts ...CallOption) string {
	cc := resolveCall(opts)

	if url == "" || body == "" {
		c.bus.Emit(cc.delivery, event.TypeGetResponseFailed, "Invalid parameters")
		return TextInvalidParameters
	}
	url, body = clip(url, body)

	reply, err := c.store.TakeResponse(ctx, url, body)
	switch {
	case err == nil:
		c.bus.Emit(cc.delivery, event.TypeGetResponseSuccess, "Response retrieved from storage")
		return reply
	case errors.Is(err, store.ErrNotFound):
		c.bus.Emit(cc.delivery, event.TypeGetResponseNotFound, "Response not found in storage")
		return TextNoResponse
	default:
		observability.LogStoreError(c.logger, "take_response", 0, err)
		c.bus.Emit(cc.delivery, event.TypeGetResponseFailed, "Failed to read response: "+err.Error())
		return TextNoResponse
	}
}

// FindResponse looks up a cached reply without consuming it.
func (c *Client) FindResponse(ctx context.Context, url, body string) (string, bool) {
	url, body = clip(url, body)
	reply, err := c.store.FindResponse(ctx, url, body)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			observability.LogStoreError(c.logger, "find_response", 0, err)
		}
		return "", false
	}
	return reply, true
}

// PurgeOlderThan deletes queue entries older than hours, and cached
// responses too when includeResponses is set. It returns the number of rows
// deleted, or -1 if the purge failed.
func (c *Client) PurgeOlderThan(ctx context.Context, hours int, includeResponses bool, opts ...CallOption) int {
	cc := resolveCall(opts)
	c.bus.Emit(cc.delivery, event.TypeCleanStart, fmt.Sprintf("Cleaning records older than %d hours", hours))

	n, err := c.retention.PurgeOlderThan(ctx, hours, includeResponses)
	if err != nil {
		c.logger.Warn("purge failed", slog.String("error", err.Error()))
		c.bus.Emit(cc.delivery, event.TypeCleanComplete, "Cleanup failed: "+err.Error())
		return -1
	}

	c.bus.Emit(cc.delivery, event.TypeCleanComplete, fmt.Sprintf("Cleanup complete. Records deleted: %d", n))
	return n
}

// CountOlderThan counts cached responses (checkResponses) or queue entries
// older than hours. It returns -1 if the count failed.
func (c *Client) CountOlderThan(ctx context.Context, hours int, checkResponses bool, opts ...CallOption) int {
	cc := resolveCall(opts)

	n, err := c.retention.CountOlderThan(ctx, hours, checkResponses)
	if err != nil {
		c.logger.Warn("count failed", slog.String("error", err.Error()))
		n = -1
	}

	kind := "queue entries"
	if checkResponses {
		kind = "responses"
	}
	c.bus.Emit(cc.delivery, event.TypeCountResult, fmt.Sprintf("Found %d %s older than %d hours", n, kind, hours))
	return n
}

// PendingEntries returns up to limit queued entries that are eligible for
// the next drain, oldest first.
func (c *Client) PendingEntries(ctx context.Context, limit int) ([]store.QueueEntry, error) {
	return c.store.DrainBatch(ctx, limit)
}

// PendingCount returns the number of queued entries, eligible or deferred.
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	return c.store.PendingCount(ctx)
}

// RegisterEventCallback replaces the synchronous event callback.
// nil disables it.
func (c *Client) RegisterEventCallback(cb event.Callback) {
	c.bus.Register(cb)
}

// PendingEventCount returns the number of events waiting to be polled.
func (c *Client) PendingEventCount() int {
	return c.bus.Len()
}

// TakeNextEvent removes and returns the oldest queued event.
func (c *Client) TakeNextEvent() (event.Event, bool) {
	return c.bus.TakeNext()
}

// ClearEvents discards every queued event.
func (c *Client) ClearEvents() {
	c.bus.Clear()
}

// DroppedEventCount returns how many events were discarded because the
// event queue was full.
func (c *Client) DroppedEventCount() int64 {
	return c.bus.Dropped()
}

// clip applies the host boundary limits to url and body.
func clip(url, body string) (string, string) {
	return codec.Truncate(url, codec.MaxURLUnits), codec.Truncate(body, codec.MaxBodyUnits)
}

// errorText renders err as the "ERROR:" text returned to the host.
func errorText(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, "ERROR:") {
		return msg
	}
	return "ERROR: " + msg
}
