package repository

import (
	"context"
	"fmt"
	"time"
)

// ActivityDetail is one row of the per-(app, title) focus aggregation.
type ActivityDetail struct {
	App       string    `json:"app"`
	TitleHash string    `json:"title_hash"`
	TotalSec  int64     `json:"total_sec"`
	Samples   int64     `json:"samples"`
	LastTS    time.Time `json:"last_ts"`
}

// UpsertActivityDetail folds one focus-block observation into the
// aggregation keyed by (app, title hash).
func (s *Store) UpsertActivityDetail(ctx context.Context, app, titleHash string, durationSec int, ts time.Time) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO activity_details (app, title_hash, total_sec, samples, last_ts)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT(app, title_hash) DO UPDATE SET
	total_sec = total_sec + excluded.total_sec,
	samples = samples + 1,
	last_ts = MAX(last_ts, excluded.last_ts)`,
			app, titleHash, durationSec, ts.UnixMicro())
		if err != nil {
			return fmt.Errorf("repository: upsert activity detail: %w", err)
		}
		return nil
	})
}

// TopActivityDetails returns the aggregation rows with the most focus
// time, up to limit.
func (s *Store) TopActivityDetails(ctx context.Context, limit int) ([]ActivityDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT app, title_hash, total_sec, samples, last_ts
FROM activity_details ORDER BY total_sec DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: query activity details: %w", err)
	}
	defer rows.Close()

	var details []ActivityDetail
	for rows.Next() {
		var (
			detail  ActivityDetail
			tsMicro int64
		)
		if err := rows.Scan(&detail.App, &detail.TitleHash, &detail.TotalSec, &detail.Samples, &tsMicro); err != nil {
			return nil, fmt.Errorf("repository: scan activity detail: %w", err)
		}
		detail.LastTS = time.UnixMicro(tsMicro).UTC()
		details = append(details, detail)
	}
	return details, rows.Err()
}
