// Package store provides the durable queue and response cache.
//
// Two tables back the queue: pending outbound requests (QueueEntry) and
// cached replies keyed by (URL, request body) (ResponseRecord). SQLiteStore
// persists both on disk; MemoryStore implements the same contract in memory.
package store

import (
	"context"
	"errors"
	"time"
)

// Store persists pending requests and cached responses.
// Implementations must be safe for concurrent use.
type Store interface {
	// Enqueue inserts a pending request stamped with the current time and
	// returns its identity. Duplicate content is allowed.
	Enqueue(ctx context.Context, url, body string, expectResponse bool) (int64, error)

	// DrainBatch returns up to limit eligible entries, oldest first.
	// Entries are not removed.
	DrainBatch(ctx context.Context, limit int) ([]QueueEntry, error)

	// Remove deletes one entry. Removing a missing id is not an error.
	Remove(ctx context.Context, id int64) error

	// MarkFailed records a failed attempt and defers the entry until notBefore.
	// A zero notBefore keeps the entry eligible for the next drain.
	MarkFailed(ctx context.Context, id int64, notBefore time.Time) error

	// UpsertResponse inserts or replaces the response for (url, requestBody).
	UpsertResponse(ctx context.Context, url, requestBody, responseBody string) error

	// FindResponse looks up a cached response without removing it.
	// Returns ErrNotFound if none exists.
	FindResponse(ctx context.Context, url, requestBody string) (string, error)

	// TakeResponse returns the most recent cached response for the key and
	// deletes every record matching it. Returns ErrNotFound if none exists.
	TakeResponse(ctx context.Context, url, requestBody string) (string, error)

	// Purge deletes queue entries (and responses, if includeResponses)
	// stamped strictly before cutoff. Returns the combined count.
	Purge(ctx context.Context, cutoff time.Time, includeResponses bool) (int, error)

	// CountStale counts rows stamped strictly before cutoff in the response
	// table when checkResponses is set, otherwise in the queue table.
	CountStale(ctx context.Context, cutoff time.Time, checkResponses bool) (int, error)

	// PendingCount returns the total number of queued entries.
	PendingCount(ctx context.Context) (int, error)

	// Close releases resources. Safe to call more than once.
	Close() error
}

// QueueEntry is a pending outbound request.
type QueueEntry struct {
	ID             int64
	URL            string
	Body           string
	ExpectResponse bool
	Timestamp      time.Time

	// Attempts counts failed deliveries so far.
	Attempts int
	// NotBefore is the earliest time the entry is drained again.
	NotBefore time.Time
}

// ResponseRecord is a cached reply to a delivered request.
type ResponseRecord struct {
	ID           int64
	URL          string
	RequestBody  string
	ResponseBody string
	Timestamp    time.Time
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no cached response exists for the key.
	ErrNotFound = errors.New("response not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("queue store closed")

	// ErrInvalidLimit indicates a non-positive batch limit.
	ErrInvalidLimit = errors.New("batch limit must be positive")
)

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

func defaultOptions() options {
	return options{now: time.Now}
}

// WithNowFunc overrides the clock used to stamp rows.
func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
