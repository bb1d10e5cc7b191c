// Package store persists cacheable compile results in SQLite so that they
// survive restarts. It sits behind the in-memory LRU as a second tier.
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

	_ "modernc.org/sqlite"

	"asmexplorer/internal/logging"
)

// ResultStore maps request fingerprints to serialized results.
type ResultStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	closed bool
}

// Open creates or opens the database at path.
func Open(path string) (*ResultStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &ResultStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.StoreDebug("Result store ready at %s", path)
	return s, nil
}

func (s *ResultStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		fingerprint TEXT PRIMARY KEY,
		compiler TEXT NOT NULL,
		payload BLOB NOT NULL,
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		last_accessed INTEGER NOT NULL,
		hits INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_results_compiler ON results(compiler);
	CREATE INDEX IF NOT EXISTS idx_results_accessed ON results(last_accessed);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database path.
func (s *ResultStore) Path() string {
	return s.dbPath
}

// Get returns the payload stored under fingerprint and bumps its access
// time. A missing entry is (nil, false, nil).
func (s *ResultStore) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM results WHERE fingerprint = ?`, fingerprint).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read result: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE results SET last_accessed = ?, hits = hits + 1 WHERE fingerprint = ?`,
		time.Now().UnixNano(), fingerprint); err != nil {
		logging.StoreWarn("Failed to update access time for %s: %v", fingerprint, err)
	}
	return payload, true, nil
}

// Put stores payload under fingerprint, replacing any previous entry.
func (s *ResultStore) Put(ctx context.Context, fingerprint, compilerID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (fingerprint, compiler, payload, size, created_at, last_accessed, hits)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(fingerprint) DO UPDATE SET
			compiler = excluded.compiler,
			payload = excluded.payload,
			size = excluded.size,
			created_at = excluded.created_at,
			last_accessed = excluded.last_accessed`,
		fingerprint, compilerID, payload, len(payload), now, now)
	if err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	logging.StoreDebug("Stored %d-byte result for %s (%s)", len(payload), compilerID, fingerprint)
	return nil
}

// Prune deletes entries not read since cutoff and returns how many went.
func (s *ResultStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE last_accessed < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune results: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.StoreDebug("Pruned %d results last read before %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Stats summarises the table.
type Stats struct {
	Entries int64 `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Hits    int64 `json:"hits"`
}

// Stats returns entry count, total payload bytes and accumulated hits.
func (s *ResultStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(hits), 0) FROM results`).
		Scan(&st.Entries, &st.Bytes, &st.Hits)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read store stats: %w", err)
	}
	return st, nil
}

// Close closes the database. It is safe to call more than once.
func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
