package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lumora/collector/internal/domain/model"
)

// EnqueueHandoff stores a pending package and commits the builder cursor
// in the same transaction.
func (s *Store) EnqueueHandoff(ctx context.Context, pkg model.HandoffPackage, cursorKey string, cursor time.Time) error {
	payload, err := json.Marshal(pkg.Payload)
	if err != nil {
		return fmt.Errorf("repository: encode handoff payload: %w", err)
	}
	return s.withRetry(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
INSERT INTO handoff_queue (package_id, created_at, status, payload, size_bytes, truncated)
VALUES (?, ?, ?, ?, ?, ?)`,
				pkg.PackageID,
				pkg.CreatedAt.UnixMicro(),
				pkg.Status,
				string(payload),
				pkg.SizeBytes,
				boolToInt(pkg.Truncated),
			)
			if err != nil {
				return fmt.Errorf("repository: enqueue handoff: %w", err)
			}
			return setCursorTx(ctx, tx, cursorKey, cursor)
		})
	})
}

// NextPendingHandoff returns the oldest pending package, or ErrNotFound.
func (s *Store) NextPendingHandoff(ctx context.Context) (model.HandoffPackage, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT package_id, created_at, status, payload, size_bytes, truncated
FROM handoff_queue WHERE status = ? ORDER BY created_at LIMIT 1`, model.HandoffPending)

	var (
		pkg          model.HandoffPackage
		createdMicro int64
		payload      string
		truncated    int
	)
	err := row.Scan(&pkg.PackageID, &createdMicro, &pkg.Status, &payload, &pkg.SizeBytes, &truncated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.HandoffPackage{}, ErrNotFound
	}
	if err != nil {
		return model.HandoffPackage{}, fmt.Errorf("repository: query handoff: %w", err)
	}
	pkg.CreatedAt = time.UnixMicro(createdMicro).UTC()
	if err := json.Unmarshal([]byte(payload), &pkg.Payload); err != nil {
		return model.HandoffPackage{}, fmt.Errorf("repository: decode handoff payload: %w", err)
	}
	pkg.Truncated = truncated != 0
	return pkg, nil
}

// ConsumeHandoff transitions a pending package to consumed. Packages in
// any other state return ErrNotFound.
func (s *Store) ConsumeHandoff(ctx context.Context, packageID string) error {
	return s.withRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `
UPDATE handoff_queue SET status = ? WHERE package_id = ? AND status = ?`,
			model.HandoffConsumed, packageID, model.HandoffPending)
		if err != nil {
			return fmt.Errorf("repository: consume handoff: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ExpireHandoffs marks pending packages created before cutoff as expired
// and returns how many were transitioned.
func (s *Store) ExpireHandoffs(ctx context.Context, cutoff time.Time) (int64, error) {
	var expired int64
	err := s.withRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `
UPDATE handoff_queue SET status = ? WHERE status = ? AND created_at < ?`,
			model.HandoffExpired, model.HandoffPending, cutoff.UnixMicro())
		if err != nil {
			return fmt.Errorf("repository: expire handoffs: %w", err)
		}
		expired, _ = result.RowsAffected()
		return nil
	})
	return expired, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
