package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lumora/collector/internal/domain/model"
)

const insertEventSQL = `
INSERT OR IGNORE INTO events
	(event_id, schema_version, ts, source, app, event_type, priority,
	 resource_type, resource_id, payload, raw, pii_level, redaction, pid, window_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertEvents appends a batch of envelopes inside one transaction and
// returns how many rows were actually inserted (duplicates by event_id
// are ignored). Busy/locked conditions are retried with backoff; the
// whole batch either commits or fails.
func (s *Store) InsertEvents(ctx context.Context, envelopes []model.EventEnvelope) (int, error) {
	if len(envelopes) == 0 {
		return 0, nil
	}

	var inserted int
	err := s.withRetry(ctx, func() error {
		inserted = 0
		return s.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, insertEventSQL)
			if err != nil {
				return fmt.Errorf("repository: prepare insert: %w", err)
			}
			defer stmt.Close()

			for _, envelope := range envelopes {
				payload, err := json.Marshal(envelope.Payload)
				if err != nil {
					return fmt.Errorf("repository: encode payload: %w", err)
				}
				raw := ""
				if len(envelope.Raw) > 0 {
					encoded, err := json.Marshal(envelope.Raw)
					if err != nil {
						return fmt.Errorf("repository: encode raw copy: %w", err)
					}
					raw = string(encoded)
				}
				result, err := stmt.ExecContext(ctx,
					envelope.EventID,
					envelope.SchemaVersion,
					envelope.TS.UnixMicro(),
					envelope.Source,
					envelope.App,
					envelope.EventType,
					string(envelope.Priority),
					envelope.Resource.Type,
					envelope.Resource.ID,
					string(payload),
					raw,
					envelope.Privacy.PIILevel,
					strings.Join(envelope.Privacy.Redaction, ","),
					envelope.PID,
					envelope.WindowID,
				)
				if err != nil {
					return err
				}
				if n, err := result.RowsAffected(); err == nil {
					inserted += int(n)
				}
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// EventsSince streams committed ledger rows with ts >= since, ordered by
// timestamp then insertion order, up to limit rows (0 means no limit).
func (s *Store) EventsSince(ctx context.Context, since time.Time, limit int) ([]model.SessionEvent, error) {
	query := `
SELECT ts, event_type, priority, app, resource_type, resource_id, payload
FROM events WHERE ts >= ? ORDER BY ts, id`
	args := []any{since.UnixMicro()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: query events: %w", err)
	}
	defer rows.Close()

	var events []model.SessionEvent
	for rows.Next() {
		var (
			tsMicro    int64
			priority   string
			payloadRaw string
			event      model.SessionEvent
		)
		if err := rows.Scan(&tsMicro, &event.EventType, &priority, &event.App,
			&event.ResourceType, &event.ResourceID, &payloadRaw); err != nil {
			return nil, fmt.Errorf("repository: scan event: %w", err)
		}
		event.TS = time.UnixMicro(tsMicro).UTC()
		event.Priority = model.Priority(priority)
		if err := json.Unmarshal([]byte(payloadRaw), &event.Payload); err != nil {
			event.Payload = map[string]any{}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// RawEvent returns the pre-redaction audit copy stored alongside the
// ledger row, or ErrNotFound when no such event exists. Events that
// arrived without a raw form return a nil map.
func (s *Store) RawEvent(ctx context.Context, eventID string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT raw FROM events WHERE event_id = ?", eventID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: query raw event: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("repository: decode raw event: %w", err)
	}
	return out, nil
}

// LastEventTS returns the newest ledger timestamp, or the zero time for
// an empty ledger.
func (s *Store) LastEventTS(ctx context.Context) (time.Time, error) {
	var tsMicro sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(ts) FROM events").Scan(&tsMicro)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: query last event ts: %w", err)
	}
	if !tsMicro.Valid {
		return time.Time{}, nil
	}
	return time.UnixMicro(tsMicro.Int64).UTC(), nil
}

// EventCount returns the number of ledger rows.
func (s *Store) EventCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: count events: %w", err)
	}
	return count, nil
}
