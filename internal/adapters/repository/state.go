package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Cursor keys used by the derivation jobs.
const (
	CursorSessionized = "last_sessionized_ts"
	CursorRoutine     = "last_routine_ts"
	CursorHandoff     = "last_handoff_ts"
)

// Cursor returns the saved progress marker for key. The second return
// value is false when no cursor has been written yet.
func (s *Store) Cursor(ctx context.Context, key string) (time.Time, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("repository: query cursor %s: %w", key, err)
	}
	micro, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("repository: parse cursor %s: %w", key, err)
	}
	return time.UnixMicro(micro).UTC(), true, nil
}

// SetCursor writes a progress marker outside any job transaction. Jobs
// normally commit cursors together with their results; this is for
// one-off repositioning.
func (s *Store) SetCursor(ctx context.Context, key string, cursor time.Time) error {
	return s.withRetry(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			return setCursorTx(ctx, tx, key, cursor)
		})
	})
}

func setCursorTx(ctx context.Context, tx *sql.Tx, key string, cursor time.Time) error {
	if key == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO state (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, strconv.FormatInt(cursor.UnixMicro(), 10))
	if err != nil {
		return fmt.Errorf("repository: set cursor %s: %w", key, err)
	}
	return nil
}
