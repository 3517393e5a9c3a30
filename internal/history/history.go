// Package history provides a SQLite-backed query log. Every answered
// question is recorded with its answer, source count, and latency so
// operators can audit what the service has been asked.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry is a single answered question.
type Entry struct {
	// Question is the question as asked.
	Question string
	// Answer is the generated answer text.
	Answer string
	// SourceCount is the number of chunks the answer was grounded in.
	SourceCount int
	// Latency is how long the answer took end to end.
	Latency time.Duration
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time
}

// Store persists and retrieves the query log. Implementations must be safe
// for concurrent use.
type Store interface {
	// Append persists a single answered question.
	Append(ctx context.Context, question, answer string, sourceCount int, latency time.Duration) error
	// Recent returns the most recent n entries, newest-first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the query log database.
// It resolves to ~/.askdoc/history.db, creating the directory if needed.
// ASKDOC_HISTORY_DB overrides the full path.
func DefaultDBPath() (string, error) {
	if p := os.Getenv("ASKDOC_HISTORY_DB"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".askdoc")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("history: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS queries (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    question      TEXT    NOT NULL,
    answer        TEXT    NOT NULL,
    source_count  INTEGER NOT NULL,
    latency_ms    INTEGER NOT NULL,
    created_at    INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_queries_created
    ON queries (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append persists a single answered question.
func (s *SQLiteStore) Append(ctx context.Context, question, answer string, sourceCount int, latency time.Duration) error {
	const q = `INSERT INTO queries (question, answer, source_count, latency_ms, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, question, answer, sourceCount, latency.Milliseconds(), time.Now().Unix()); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries, newest-first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `
SELECT question, answer, source_count, latency_ms, created_at
FROM   queries
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var latencyMS, ts int64
		if err := rows.Scan(&e.Question, &e.Answer, &e.SourceCount, &latencyMS, &ts); err != nil {
			return nil, fmt.Errorf("history: recent scan: %w", err)
		}
		e.Latency = time.Duration(latencyMS) * time.Millisecond
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("history: close: %w", err)
	}
	return nil
}
