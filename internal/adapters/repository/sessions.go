package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumora/collector/internal/domain/model"
)

// SaveSessions upserts derived sessions and commits the job cursor in the
// same transaction, so a crash can never leave sessions persisted with a
// stale cursor or vice versa.
func (s *Store) SaveSessions(ctx context.Context, sessions []model.Session, cursorKey string, cursor time.Time) error {
	return s.withRetry(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			for _, session := range sessions {
				summary, err := json.Marshal(session.Summary)
				if err != nil {
					return fmt.Errorf("repository: encode summary: %w", err)
				}
				_, err = tx.ExecContext(ctx, `
INSERT INTO sessions (session_id, start_ts, end_ts, duration_sec, summary)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	start_ts = excluded.start_ts,
	end_ts = excluded.end_ts,
	duration_sec = excluded.duration_sec,
	summary = excluded.summary`,
					session.SessionID,
					session.StartTS.UnixMicro(),
					session.EndTS.UnixMicro(),
					int64(session.Duration.Seconds()),
					string(summary),
				)
				if err != nil {
					return fmt.Errorf("repository: insert session: %w", err)
				}
			}
			return setCursorTx(ctx, tx, cursorKey, cursor)
		})
	})
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]model.Session, error) {
	return s.querySessions(ctx, `
SELECT session_id, start_ts, end_ts, duration_sec, summary
FROM sessions ORDER BY end_ts DESC LIMIT ?`, limit)
}

// SessionsSince returns sessions ending at or after since, oldest first.
func (s *Store) SessionsSince(ctx context.Context, since time.Time) ([]model.Session, error) {
	return s.querySessions(ctx, `
SELECT session_id, start_ts, end_ts, duration_sec, summary
FROM sessions WHERE end_ts >= ? ORDER BY end_ts`, since.UnixMicro())
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var (
			session    model.Session
			startMicro int64
			endMicro   int64
			durSec     int64
			summaryRaw string
		)
		if err := rows.Scan(&session.SessionID, &startMicro, &endMicro, &durSec, &summaryRaw); err != nil {
			return nil, fmt.Errorf("repository: scan session: %w", err)
		}
		session.StartTS = time.UnixMicro(startMicro).UTC()
		session.EndTS = time.UnixMicro(endMicro).UTC()
		session.Duration = time.Duration(durSec) * time.Second
		if err := json.Unmarshal([]byte(summaryRaw), &session.Summary); err != nil {
			return nil, fmt.Errorf("repository: decode summary: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}
