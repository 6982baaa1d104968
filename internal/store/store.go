// Package store keeps provisioning and inventory history in SQLite so an
// operator can review past runs and pick the next start port.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gwprov/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the run history database.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	now    func() time.Time
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()
	log := logging.Get(logging.CategoryStore)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Error("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path, now: time.Now}
	if err := s.initialize(); err != nil {
		log.Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Store("history store ready at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		workflow TEXT NOT NULL,
		gateway TEXT NOT NULL,
		start_port INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		aborted INTEGER NOT NULL DEFAULT 0,
		aborted_at TEXT,
		success INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		port TEXT NOT NULL,
		port_index INTEGER NOT NULL,
		kind TEXT NOT NULL,
		stage TEXT,
		detail TEXT,
		email TEXT,
		url TEXT,
		recorded_at TEXT NOT NULL,
		UNIQUE(run_id, port)
	);

	CREATE TABLE IF NOT EXISTS inventory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		gateway TEXT NOT NULL,
		port TEXT NOT NULL,
		imei TEXT,
		iccid TEXT,
		mdn TEXT,
		carrier TEXT,
		status TEXT NOT NULL,
		missing TEXT,
		scraped_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_lookup ON runs(workflow, gateway, started_at);
	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_inventory_gateway ON inventory(gateway, scraped_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// exec serializes writes.
func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.ExecContext(ctx, query, args...)
}
