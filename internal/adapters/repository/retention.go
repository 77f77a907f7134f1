package repository

import (
	"context"
	"fmt"
	"time"
)

// SweepResult reports how many rows each retention pass removed.
type SweepResult struct {
	Events          int64 `json:"events"`
	Sessions        int64 `json:"sessions"`
	Routines        int64 `json:"routines"`
	Handoffs        int64 `json:"handoffs"`
	ActivityDetails int64 `json:"activity_details"`
}

// SweepPolicy holds the age cutoffs for one retention pass. Zero cutoffs
// skip that table.
type SweepPolicy struct {
	EventsBefore          time.Time
	SessionsBefore        time.Time
	RoutinesBefore        time.Time
	HandoffsBefore        time.Time
	ActivityDetailsBefore time.Time
	BatchSize             int
}

// Sweep deletes aged rows table by table. Events are removed in bounded
// batches so a large backlog cannot hold the write lock for long.
// Consumed and expired handoff packages past the cutoff are removed;
// pending ones are left for ExpireHandoffs.
func (s *Store) Sweep(ctx context.Context, policy SweepPolicy) (SweepResult, error) {
	var result SweepResult
	batch := policy.BatchSize
	if batch <= 0 {
		batch = 1000
	}

	if !policy.EventsBefore.IsZero() {
		for {
			n, err := s.deleteBatch(ctx, `
DELETE FROM events WHERE id IN
	(SELECT id FROM events WHERE ts < ? LIMIT ?)`,
				policy.EventsBefore.UnixMicro(), batch)
			if err != nil {
				return result, err
			}
			result.Events += n
			if n < int64(batch) {
				break
			}
		}
	}

	if !policy.SessionsBefore.IsZero() {
		n, err := s.deleteBatch(ctx, "DELETE FROM sessions WHERE end_ts < ?", policy.SessionsBefore.UnixMicro())
		if err != nil {
			return result, err
		}
		result.Sessions = n
	}

	if !policy.RoutinesBefore.IsZero() {
		n, err := s.deleteBatch(ctx, "DELETE FROM routine_candidates WHERE last_seen_ts < ?", policy.RoutinesBefore.UnixMicro())
		if err != nil {
			return result, err
		}
		result.Routines = n
	}

	if !policy.HandoffsBefore.IsZero() {
		n, err := s.deleteBatch(ctx, `
DELETE FROM handoff_queue WHERE created_at < ? AND status != ?`,
			policy.HandoffsBefore.UnixMicro(), "pending")
		if err != nil {
			return result, err
		}
		result.Handoffs = n
	}

	if !policy.ActivityDetailsBefore.IsZero() {
		n, err := s.deleteBatch(ctx, "DELETE FROM activity_details WHERE last_ts < ?", policy.ActivityDetailsBefore.UnixMicro())
		if err != nil {
			return result, err
		}
		result.ActivityDetails = n
	}

	return result, nil
}

func (s *Store) deleteBatch(ctx context.Context, query string, args ...any) (int64, error) {
	var deleted int64
	err := s.withRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("repository: retention delete: %w", err)
		}
		deleted, _ = result.RowsAffected()
		return nil
	})
	return deleted, err
}

// Checkpoint truncates the WAL so reclaimed pages shrink the file on
// disk.
func (s *Store) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("repository: wal checkpoint: %w", err)
	}
	return nil
}

// Vacuum rebuilds the database file. Expensive; the sweeper only calls
// it when the file exceeds its size ceiling.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("repository: vacuum: %w", err)
	}
	return nil
}
