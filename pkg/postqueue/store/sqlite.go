package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
	CREATE TABLE IF NOT EXISTS http_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server_url TEXT NOT NULL,
		json_body TEXT NOT NULL,
		expect_response INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS http_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server_url TEXT NOT NULL,
		request_body TEXT NOT NULL,
		response_body TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		UNIQUE(server_url, request_body)
	);

	CREATE INDEX IF NOT EXISTS idx_http_queue_timestamp
		ON http_queue(timestamp);

	CREATE INDEX IF NOT EXISTS idx_http_responses_timestamp
		ON http_responses(timestamp);
`

// Columns added after the first schema revision.
var queueMigrations = []struct {
	column string
	ddl    string
}{
	{"attempts", "ALTER TABLE http_queue ADD COLUMN attempts INTEGER NOT NULL DEFAULT 0"},
	{"not_before", "ALTER TABLE http_queue ADD COLUMN not_before INTEGER NOT NULL DEFAULT 0"},
}

// DefaultPath returns the default database location, <config dir>/gcore/data.db.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "gcore", "data.db")
}

// SQLiteStore persists the queue and response cache to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	opts   options
	mu     sync.RWMutex
	closed bool
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a store at path.
// The path should be a file path (e.g., "./data.db") or ":memory:" for testing.
// Parent directories are created if needed and the schema is created
// idempotently, so reopening an existing database is safe.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if path == "" {
		path = DefaultPath()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: writers never contend for the file lock and ":memory:"
	// databases are not split across connections.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		// Enable WAL mode for better concurrent read performance
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{db: db, opts: o}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return s, nil
}

// migrate adds columns missing from databases created by older revisions.
func (s *SQLiteStore) migrate() error {
	rows, err := s.db.Query("PRAGMA table_info(http_queue)")
	if err != nil {
		return fmt.Errorf("read table info: %w", err)
	}

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scan table info: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate table info: %w", err)
	}
	rows.Close()

	for _, m := range queueMigrations {
		if existing[m.column] {
			continue
		}
		if _, err := s.db.Exec(m.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", m.column, err)
		}
	}
	return nil
}

// Enqueue implements Store.
func (s *SQLiteStore) Enqueue(ctx context.Context, url, body string, expectResponse bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO http_queue (server_url, json_body, expect_response, timestamp)
		VALUES (?, ?, ?, ?)
	`, url, body, boolToInt(expectResponse), s.opts.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue id: %w", err)
	}
	return id, nil
}

// DrainBatch implements Store.
func (s *SQLiteStore) DrainBatch(ctx context.Context, limit int) ([]QueueEntry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, server_url, json_body, expect_response, timestamp, attempts, not_before
		FROM http_queue
		WHERE not_before <= ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ?
	`, s.opts.now().Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("drain batch: %w", err)
	}
	defer rows.Close()

	entries := make([]QueueEntry, 0, limit)
	for rows.Next() {
		var (
			e         QueueEntry
			expect    int
			ts        int64
			notBefore int64
		)
		if err := rows.Scan(&e.ID, &e.URL, &e.Body, &expect, &ts, &e.Attempts, &notBefore); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		e.ExpectResponse = expect != 0
		e.Timestamp = time.Unix(ts, 0)
		if notBefore > 0 {
			e.NotBefore = time.Unix(notBefore, 0)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue: %w", err)
	}

	return entries, nil
}

// Remove implements Store.
func (s *SQLiteStore) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM http_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove entry %d: %w", id, err)
	}
	return nil
}

// MarkFailed implements Store.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id int64, notBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	var nb int64
	if !notBefore.IsZero() {
		nb = notBefore.Unix()
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE http_queue SET attempts = attempts + 1, not_before = ?
		WHERE id = ?
	`, nb, id); err != nil {
		return fmt.Errorf("mark entry %d failed: %w", id, err)
	}
	return nil
}

// UpsertResponse implements Store.
func (s *SQLiteStore) UpsertResponse(ctx context.Context, url, requestBody, responseBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	// INSERT OR REPLACE keeps at most one row per (url, request_body)
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO http_responses (server_url, request_body, response_body, timestamp)
		VALUES (?, ?, ?, ?)
	`, url, requestBody, responseBody, s.opts.now().Unix()); err != nil {
		return fmt.Errorf("upsert response: %w", err)
	}
	return nil
}

// FindResponse implements Store.
func (s *SQLiteStore) FindResponse(ctx context.Context, url, requestBody string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT response_body FROM http_responses
		WHERE server_url = ? AND request_body = ?
	`, url, requestBody).Scan(&body)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find response: %w", err)
	}
	return body, nil
}

// TakeResponse implements Store.
// The lookup and the delete run in one transaction.
func (s *SQLiteStore) TakeResponse(ctx context.Context, url, requestBody string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin take response: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var body string
	err = tx.QueryRowContext(ctx, `
		SELECT response_body FROM http_responses
		WHERE server_url = ? AND request_body = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, url, requestBody).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("take response: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM http_responses WHERE server_url = ? AND request_body = ?
	`, url, requestBody); err != nil {
		return "", fmt.Errorf("delete taken response: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit take response: %w", err)
	}
	return body, nil
}

// Purge implements Store.
func (s *SQLiteStore) Purge(ctx context.Context, cutoff time.Time, includeResponses bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	total, err := execCount(ctx, tx, `DELETE FROM http_queue WHERE timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge queue: %w", err)
	}

	if includeResponses {
		n, err := execCount(ctx, tx, `DELETE FROM http_responses WHERE timestamp < ?`, cutoff.Unix())
		if err != nil {
			return 0, fmt.Errorf("purge responses: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return total, nil
}

// CountStale implements Store.
func (s *SQLiteStore) CountStale(ctx context.Context, cutoff time.Time, checkResponses bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	query := `SELECT COUNT(*) FROM http_queue WHERE timestamp < ?`
	if checkResponses {
		query = `SELECT COUNT(*) FROM http_responses WHERE timestamp < ?`
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, cutoff.Unix()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count stale: %w", err)
	}
	return count, nil
}

// PendingCount implements Store.
func (s *SQLiteStore) PendingCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM http_queue`).Scan(&count); err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return count, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
