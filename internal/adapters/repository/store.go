// Package repository persists the event ledger and its derived artifacts
// in SQLite.
//
// One Store owns the database handle. The pipeline worker appends events;
// the derivation jobs read committed rows and replace their own derived
// tables. Writes that hit a busy/locked database are retried with
// exponential backoff up to a bound.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed ledger and derived-artifact repository.
type Store struct {
	db   *sql.DB
	path string

	retryAttempts int
	retryBackoff  time.Duration
	busyTimeout   time.Duration
	walMode       bool
}

// Open opens (creating if needed) the database at path and runs the
// schema migration. Use path ":memory:" for tests.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:          path,
		retryAttempts: 5,
		retryBackoff:  50 * time.Millisecond,
		busyTimeout:   5 * time.Second,
		walMode:       true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("repository: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open database: %w", err)
	}
	// A single connection sidesteps table-lock contention between the
	// pipeline worker and the periodic jobs.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", s.busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: set busy_timeout: %w", err)
	}
	if s.walMode {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("repository: enable WAL: %w", err)
		}
	}

	s.db = db
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Size reports the database file size in bytes, zero for in-memory
// databases.
func (s *Store) Size() int64 {
	if s.path == ":memory:" {
		return 0
	}
	var total int64
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if info, err := os.Stat(s.path + suffix); err == nil {
			total += info.Size()
		}
	}
	return total
}

// withRetry runs fn, retrying with exponential backoff while the error is
// a transient busy/locked condition. The last error is wrapped in
// ErrRetryExhausted once attempts run out.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	backoff := s.retryBackoff
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%w: %v", ErrRetryExhausted, err)
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// inTx runs fn inside one transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: commit: %w", err)
	}
	return nil
}
