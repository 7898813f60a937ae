package config

import (
	"time"

	pqerrors "github.com/randalmurphal/postqueue/pkg/postqueue/errors"
	"github.com/randalmurphal/postqueue/pkg/postqueue/processor"
	"github.com/randalmurphal/postqueue/pkg/postqueue/transport"
)

// Settings is the typed configuration of a queue deployment.
type Settings struct {
	// DatabasePath is the SQLite file. Empty means the store default.
	DatabasePath string

	BatchSize int
	ItemDelay time.Duration
	Retry     RetrySettings

	// MaxQueuedEvents bounds the pollable event FIFO. Zero is unlimited.
	MaxQueuedEvents int

	TransportTimeout time.Duration
	UserAgent        string

	LogLevel string

	// DrainSchedule and CleanupSchedule are cron specs used by the daemon.
	// Empty disables the job.
	DrainSchedule   string
	CleanupSchedule string
	// CleanupHours is the age threshold for scheduled cleanup.
	CleanupHours int
	// CleanupResponses includes the response cache in scheduled cleanup.
	CleanupResponses bool
}

// RetrySettings configures the retry policy. The zero value keeps failed
// entries forever with no delay.
type RetrySettings struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Factor         float64
	Jitter         float64
	DropPermanent  bool
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() Settings {
	return Settings{
		BatchSize:        processor.DefaultBatchSize,
		ItemDelay:        processor.DefaultItemDelay,
		TransportTimeout: transport.DefaultTimeout,
		UserAgent:        transport.DefaultUserAgent,
		LogLevel:         "info",
		DrainSchedule:    "@every 1m",
		CleanupSchedule:  "@daily",
		CleanupHours:     24 * 7,
	}
}

// FromConfig derives Settings from cfg, using DefaultSettings for missing keys.
func FromConfig(cfg Config) Settings {
	d := DefaultSettings()
	return Settings{
		DatabasePath:    cfg.String("database.path", d.DatabasePath),
		BatchSize:       cfg.Int("queue.batch_size", d.BatchSize),
		ItemDelay:       cfg.Duration("queue.item_delay", d.ItemDelay),
		MaxQueuedEvents: cfg.Int("queue.max_queued_events", d.MaxQueuedEvents),
		Retry: RetrySettings{
			MaxAttempts:    cfg.Int("queue.retry.max_attempts", 0),
			InitialBackoff: cfg.Duration("queue.retry.initial_backoff", 0),
			MaxBackoff:     cfg.Duration("queue.retry.max_backoff", 0),
			Factor:         cfg.Float("queue.retry.factor", 0),
			Jitter:         cfg.Float("queue.retry.jitter", 0),
			DropPermanent:  cfg.Bool("queue.retry.drop_permanent", false),
		},
		TransportTimeout: cfg.Duration("transport.timeout", d.TransportTimeout),
		UserAgent:        cfg.String("transport.user_agent", d.UserAgent),
		LogLevel:         cfg.String("log.level", d.LogLevel),
		DrainSchedule:    cfg.String("schedule.drain", d.DrainSchedule),
		CleanupSchedule:  cfg.String("schedule.cleanup", d.CleanupSchedule),
		CleanupHours:     cfg.Int("schedule.cleanup_hours", d.CleanupHours),
		CleanupResponses: cfg.Bool("schedule.cleanup_responses", d.CleanupResponses),
	}
}

// Policy builds the retry policy. An all-zero RetrySettings yields
// errors.RetryForever.
func (r RetrySettings) Policy() pqerrors.RetryPolicy {
	if r == (RetrySettings{}) {
		return pqerrors.RetryForever
	}

	opts := []pqerrors.RetryOption{
		pqerrors.WithMaxAttempts(r.MaxAttempts),
		pqerrors.WithInitialBackoff(r.InitialBackoff),
		pqerrors.WithJitter(r.Jitter),
		pqerrors.WithDropPermanent(r.DropPermanent),
	}
	if r.MaxBackoff > 0 {
		opts = append(opts, pqerrors.WithMaxBackoff(r.MaxBackoff))
	}
	if r.Factor > 0 {
		opts = append(opts, pqerrors.WithBackoffFactor(r.Factor))
	}
	return pqerrors.NewBackoffPolicy(pqerrors.NewRetryConfig(opts...))
}
