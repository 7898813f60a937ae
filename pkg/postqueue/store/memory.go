package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu        sync.RWMutex
	opts      options
	queue     map[int64]QueueEntry
	responses map[responseKey]ResponseRecord
	nextID    int64
	nextResp  int64
	closed    bool
}

type responseKey struct {
	url  string
	body string
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		opts:      o,
		queue:     make(map[int64]QueueEntry),
		responses: make(map[responseKey]ResponseRecord),
	}
}

// Enqueue implements Store.
func (m *MemoryStore) Enqueue(_ context.Context, url, body string, expectResponse bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	m.nextID++
	m.queue[m.nextID] = QueueEntry{
		ID:             m.nextID,
		URL:            url,
		Body:           body,
		ExpectResponse: expectResponse,
		Timestamp:      m.opts.now().Truncate(time.Second),
	}
	return m.nextID, nil
}

// DrainBatch implements Store.
func (m *MemoryStore) DrainBatch(_ context.Context, limit int) ([]QueueEntry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	now := m.opts.now()
	eligible := make([]QueueEntry, 0, len(m.queue))
	for _, e := range m.queue {
		if !e.NotBefore.IsZero() && e.NotBefore.After(now) {
			continue
		}
		eligible = append(eligible, e)
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Timestamp.Equal(eligible[j].Timestamp) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].Timestamp.Before(eligible[j].Timestamp)
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

// Remove implements Store.
func (m *MemoryStore) Remove(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.queue, id)
	return nil
}

// MarkFailed implements Store.
func (m *MemoryStore) MarkFailed(_ context.Context, id int64, notBefore time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	e, ok := m.queue[id]
	if !ok {
		return nil
	}
	e.Attempts++
	e.NotBefore = notBefore
	m.queue[id] = e
	return nil
}

// UpsertResponse implements Store.
func (m *MemoryStore) UpsertResponse(_ context.Context, url, requestBody, responseBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.nextResp++
	m.responses[responseKey{url, requestBody}] = ResponseRecord{
		ID:           m.nextResp,
		URL:          url,
		RequestBody:  requestBody,
		ResponseBody: responseBody,
		Timestamp:    m.opts.now().Truncate(time.Second),
	}
	return nil
}

// FindResponse implements Store.
func (m *MemoryStore) FindResponse(_ context.Context, url, requestBody string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrStoreClosed
	}

	rec, ok := m.responses[responseKey{url, requestBody}]
	if !ok {
		return "", ErrNotFound
	}
	return rec.ResponseBody, nil
}

// TakeResponse implements Store.
func (m *MemoryStore) TakeResponse(_ context.Context, url, requestBody string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrStoreClosed
	}

	key := responseKey{url, requestBody}
	rec, ok := m.responses[key]
	if !ok {
		return "", ErrNotFound
	}
	delete(m.responses, key)
	return rec.ResponseBody, nil
}

// Purge implements Store.
func (m *MemoryStore) Purge(_ context.Context, cutoff time.Time, includeResponses bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	limit := cutoff.Truncate(time.Second)
	deleted := 0
	for id, e := range m.queue {
		if e.Timestamp.Before(limit) {
			delete(m.queue, id)
			deleted++
		}
	}
	if includeResponses {
		for key, rec := range m.responses {
			if rec.Timestamp.Before(limit) {
				delete(m.responses, key)
				deleted++
			}
		}
	}
	return deleted, nil
}

// CountStale implements Store.
func (m *MemoryStore) CountStale(_ context.Context, cutoff time.Time, checkResponses bool) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	limit := cutoff.Truncate(time.Second)
	count := 0
	if checkResponses {
		for _, rec := range m.responses {
			if rec.Timestamp.Before(limit) {
				count++
			}
		}
		return count, nil
	}
	for _, e := range m.queue {
		if e.Timestamp.Before(limit) {
			count++
		}
	}
	return count, nil
}

// PendingCount implements Store.
func (m *MemoryStore) PendingCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.queue), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
