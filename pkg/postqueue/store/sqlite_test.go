package store_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/randalmurphal/postqueue/pkg/postqueue/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, "http://x/", `{"n":1}`, true)
	require.NoError(t, err)
	require.NoError(t, s.UpsertResponse(ctx, "http://x/", "req", "resp"))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.DrainBatch(ctx, 50)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, `{"n":1}`, entries[0].Body)
	assert.True(t, entries[0].ExpectResponse)

	body, err := s.TakeResponse(ctx, "http://x/", "req")
	require.NoError(t, err)
	assert.Equal(t, "resp", body)
}

func TestSQLiteStore_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "data.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSQLiteStore_MigratesOlderSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	// A queue table without the attempts and not_before columns.
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE http_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			server_url TEXT NOT NULL,
			json_body TEXT NOT NULL,
			expect_response INTEGER NOT NULL,
			timestamp INTEGER NOT NULL
		);
		INSERT INTO http_queue (server_url, json_body, expect_response, timestamp)
		VALUES ('http://legacy/', '{}', 0, 1);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)

	entries, err := s.DrainBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "http://legacy/", entries[0].URL)
	assert.Zero(t, entries[0].Attempts)

	require.NoError(t, s.MarkFailed(ctx, entries[0].ID, entries[0].Timestamp))
	require.NoError(t, s.Close())

	// Reopening an already migrated database is a no-op.
	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	entries, err = s.DrainBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Attempts)
}

func TestSQLiteStore_ConcurrentProducers(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	defer s.Close()

	const producers, perProducer = 4, 25

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, err := s.Enqueue(ctx, "http://x/", "b", false)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, producers*perProducer, n)
}

func TestDefaultPath(t *testing.T) {
	path := store.DefaultPath()
	assert.Equal(t, "data.db", filepath.Base(path))
	assert.Equal(t, "gcore", filepath.Base(filepath.Dir(path)))
}
