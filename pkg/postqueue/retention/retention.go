// Package retention deletes and counts queue rows by age.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/postqueue/pkg/postqueue/observability"
	"github.com/randalmurphal/postqueue/pkg/postqueue/store"
)

// ErrInvalidAge is returned for a negative age threshold.
var ErrInvalidAge = errors.New("age threshold must not be negative")

// Manager purges and counts rows older than a threshold in hours.
// The cutoff is now - hours; rows stamped strictly before it are stale, for
// both PurgeOlderThan and CountOlderThan.
type Manager struct {
	store   store.Store
	now     func() time.Time
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithNowFunc overrides the clock used to compute the cutoff.
func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = observability.Component(logger, "retention")
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics observability.MetricsRecorder) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// NewManager creates a Manager over s.
func NewManager(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:   s,
		now:     time.Now,
		logger:  observability.Component(nil, "retention"),
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Cutoff returns the instant before which rows are older than hours.
func (m *Manager) Cutoff(hours int) (time.Time, error) {
	if hours < 0 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidAge, hours)
	}
	return m.now().Add(-time.Duration(hours) * time.Hour), nil
}

// PurgeOlderThan deletes stale queue entries, and stale responses when
// includeResponses is set. It returns the combined number of rows deleted.
func (m *Manager) PurgeOlderThan(ctx context.Context, hours int, includeResponses bool) (int, error) {
	cutoff, err := m.Cutoff(hours)
	if err != nil {
		return 0, err
	}

	deleted, err := m.store.Purge(ctx, cutoff, includeResponses)
	if err != nil {
		return 0, fmt.Errorf("purge older than %dh: %w", hours, err)
	}

	m.metrics.RecordPurge(ctx, deleted, includeResponses)
	observability.LogPurge(m.logger, hours, includeResponses, deleted)
	return deleted, nil
}

// CountOlderThan counts stale rows in the response cache when
// checkResponses is set, otherwise in the pending queue.
func (m *Manager) CountOlderThan(ctx context.Context, hours int, checkResponses bool) (int, error) {
	cutoff, err := m.Cutoff(hours)
	if err != nil {
		return 0, err
	}

	count, err := m.store.CountStale(ctx, cutoff, checkResponses)
	if err != nil {
		return 0, fmt.Errorf("count older than %dh: %w", hours, err)
	}
	return count, nil
}
