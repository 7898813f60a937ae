package postqueue

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/postqueue/pkg/postqueue/config"
	pqerrors "github.com/randalmurphal/postqueue/pkg/postqueue/errors"
	"github.com/randalmurphal/postqueue/pkg/postqueue/event"
	"github.com/randalmurphal/postqueue/pkg/postqueue/observability"
	"github.com/randalmurphal/postqueue/pkg/postqueue/store"
	"github.com/randalmurphal/postqueue/pkg/postqueue/transport"
)

// clientConfig holds the configuration assembled by Option values.
type clientConfig struct {
	dbPath    string
	store     store.Store
	transport transport.Transport

	batchSize int
	itemDelay time.Duration
	retry     pqerrors.RetryPolicy

	timeout   time.Duration
	userAgent string

	maxQueued int
	callback  event.Callback

	cacheDirect bool

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	now     func() time.Time
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		timeout: transport.DefaultTimeout,
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		now:     time.Now,
	}
}

// Option configures a Client.
type Option func(*clientConfig)

// WithDatabasePath sets the SQLite file. Ignored when WithStore is used.
// Default: store.DefaultPath()
func WithDatabasePath(path string) Option {
	return func(c *clientConfig) {
		c.dbPath = path
	}
}

// WithStore replaces the SQLite store. The Client takes ownership and closes
// it on Close.
func WithStore(s store.Store) Option {
	return func(c *clientConfig) {
		c.store = s
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(c *clientConfig) {
		c.transport = t
	}
}

// WithBatchSize sets the maximum number of entries per drain.
// Default: 50
func WithBatchSize(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithItemDelay sets the spacing between posts within a drain.
// Default: 100ms. A negative value disables spacing.
func WithItemDelay(d time.Duration) Option {
	return func(c *clientConfig) {
		c.itemDelay = d
	}
}

// WithRetryPolicy sets what happens to entries whose delivery failed.
// Default: errors.RetryForever
func WithRetryPolicy(p pqerrors.RetryPolicy) Option {
	return func(c *clientConfig) {
		if p != nil {
			c.retry = p
		}
	}
}

// WithTransportTimeout sets the per-request timeout of the default transport.
// Default: 30s
func WithTransportTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithUserAgent sets the User-Agent of the default transport.
// Default: GStatistics/1.0
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) {
		c.userAgent = ua
	}
}

// WithMaxQueuedEvents bounds the pollable event FIFO. Zero is unlimited.
func WithMaxQueuedEvents(n int) Option {
	return func(c *clientConfig) {
		if n >= 0 {
			c.maxQueued = n
		}
	}
}

// WithEventCallback registers cb before LIBRARY_LOADED is emitted, so the
// callback observes it.
func WithEventCallback(cb event.Callback) Option {
	return func(c *clientConfig) {
		c.callback = cb
	}
}

// WithCacheDirectResponses makes SendRequestWithResponse store a successful
// reply in the response cache, where TakeResponse can find it.
// Default: false
func WithCacheDirectResponses(enabled bool) Option {
	return func(c *clientConfig) {
		c.cacheDirect = enabled
	}
}

// WithLogger sets the logger used by every component.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics using the global meter provider.
func WithMetrics(enabled bool) Option {
	return func(c *clientConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans using the global tracer provider.
func WithTracing(enabled bool) Option {
	return func(c *clientConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithClock overrides the clock used for row timestamps, retry deadlines and
// retention cutoffs.
func WithClock(now func() time.Time) Option {
	return func(c *clientConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSettings applies loaded configuration. Options that follow it override
// individual values.
func WithSettings(s config.Settings) Option {
	return func(c *clientConfig) {
		c.dbPath = s.DatabasePath
		if s.BatchSize > 0 {
			c.batchSize = s.BatchSize
		}
		c.itemDelay = s.ItemDelay
		c.retry = s.Retry.Policy()
		if s.MaxQueuedEvents >= 0 {
			c.maxQueued = s.MaxQueuedEvents
		}
		c.timeout = s.TransportTimeout
		c.userAgent = s.UserAgent
	}
}

// callConfig holds per-call settings.
type callConfig struct {
	delivery event.Delivery
}

// CallOption configures a single entry-point call.
type CallOption func(*callConfig)

// WithDelivery selects where the call's events go.
// Default: event.DeliverAll
//
// Example:
//
//	client.Enqueue(ctx, url, body, false, postqueue.WithDelivery(event.DeliverQueued))
func WithDelivery(d event.Delivery) CallOption {
	return func(c *callConfig) {
		c.delivery = d
	}
}

func resolveCall(opts []CallOption) callConfig {
	cc := callConfig{delivery: event.DeliverAll}
	for _, opt := range opts {
		opt(&cc)
	}
	return cc
}
