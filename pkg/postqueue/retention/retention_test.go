package retention

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/postqueue/pkg/postqueue/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (*Manager, store.Store, *clock) {
	t.Helper()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	s, err := store.NewSQLiteStore(":memory:", store.WithNowFunc(c.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewManager(s, WithNowFunc(c.Now)), s, c
}

func TestCountOlderThan(t *testing.T) {
	ctx := context.Background()
	m, s, c := setup(t)

	for i := 0; i < 3; i++ {
		_, err := s.Enqueue(ctx, "http://x/", "b", false)
		require.NoError(t, err)
	}
	require.NoError(t, s.UpsertResponse(ctx, "http://x/", "b", "r"))
	c.Advance(3 * time.Hour)

	n, err := m.CountOlderThan(ctx, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "zero hours counts every past entry")

	n, err = m.CountOlderThan(ctx, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = m.CountOlderThan(ctx, 10_000, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = m.CountOlderThan(ctx, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "checkResponses counts the response cache")
}

func TestPurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	m, s, c := setup(t)

	_, err := s.Enqueue(ctx, "http://x/", "old", false)
	require.NoError(t, err)
	require.NoError(t, s.UpsertResponse(ctx, "http://x/", "old", "r"))

	c.Advance(48 * time.Hour)
	_, err = s.Enqueue(ctx, "http://x/", "new", false)
	require.NoError(t, err)

	t.Run("queue only", func(t *testing.T) {
		n, err := m.PurgeOlderThan(ctx, 24, false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		body, err := s.FindResponse(ctx, "http://x/", "old")
		require.NoError(t, err)
		assert.Equal(t, "r", body)
	})

	t.Run("with responses", func(t *testing.T) {
		n, err := m.PurgeOlderThan(ctx, 24, true)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.FindResponse(ctx, "http://x/", "old")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	pending, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestBoundaryAgreement(t *testing.T) {
	ctx := context.Background()
	m, s, c := setup(t)

	_, err := s.Enqueue(ctx, "http://x/", "edge", false)
	require.NoError(t, err)
	c.Advance(time.Hour)

	// The entry sits exactly on the one-hour cutoff.
	count, err := m.CountOlderThan(ctx, 1, false)
	require.NoError(t, err)
	purged, err := m.PurgeOlderThan(ctx, 1, false)
	require.NoError(t, err)
	assert.Equal(t, count, purged)
	assert.Zero(t, purged)
}

func TestNegativeHours(t *testing.T) {
	m, _, _ := setup(t)

	_, err := m.PurgeOlderThan(context.Background(), -1, true)
	assert.ErrorIs(t, err, ErrInvalidAge)

	_, err = m.CountOlderThan(context.Background(), -5, false)
	assert.ErrorIs(t, err, ErrInvalidAge)
}

func TestStoreErrorsWrapped(t *testing.T) {
	m, s, _ := setup(t)
	require.NoError(t, s.Close())

	_, err := m.PurgeOlderThan(context.Background(), 1, false)
	assert.ErrorIs(t, err, store.ErrStoreClosed)

	_, err = m.CountOlderThan(context.Background(), 1, false)
	assert.ErrorIs(t, err, store.ErrStoreClosed)
}

func TestCutoff(t *testing.T) {
	c := &clock{now: time.Unix(10*3600, 0)}
	m := NewManager(store.NewMemoryStore(), WithNowFunc(c.Now))

	cutoff, err := m.Cutoff(4)
	require.NoError(t, err)
	assert.True(t, cutoff.Equal(time.Unix(6*3600, 0)), "got %v", cutoff)
}
