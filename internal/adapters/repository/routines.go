package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumora/collector/internal/domain/model"
)

// ReplaceRoutines swaps the candidate table wholesale for the mining-run
// output and commits the job cursor in the same transaction.
func (s *Store) ReplaceRoutines(ctx context.Context, candidates []model.RoutineCandidate, cursorKey string, cursor time.Time) error {
	return s.withRetry(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "DELETE FROM routine_candidates"); err != nil {
				return fmt.Errorf("repository: clear routines: %w", err)
			}
			for _, candidate := range candidates {
				pattern, err := json.Marshal(candidate.Pattern)
				if err != nil {
					return fmt.Errorf("repository: encode pattern: %w", err)
				}
				evidence, err := json.Marshal(candidate.EvidenceSessionIDs)
				if err != nil {
					return fmt.Errorf("repository: encode evidence: %w", err)
				}
				_, err = tx.ExecContext(ctx, `
INSERT INTO routine_candidates
	(pattern_id, pattern, support, confidence, last_seen_ts, evidence)
VALUES (?, ?, ?, ?, ?, ?)`,
					candidate.PatternID,
					string(pattern),
					candidate.Support,
					candidate.Confidence,
					candidate.LastSeenTS.UnixMicro(),
					string(evidence),
				)
				if err != nil {
					return fmt.Errorf("repository: insert routine: %w", err)
				}
			}
			return setCursorTx(ctx, tx, cursorKey, cursor)
		})
	})
}

// TopRoutines returns up to limit candidates ordered by support then
// confidence, best first.
func (s *Store) TopRoutines(ctx context.Context, limit int) ([]model.RoutineCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT pattern_id, pattern, support, confidence, last_seen_ts, evidence
FROM routine_candidates
ORDER BY support DESC, confidence DESC, last_seen_ts DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: query routines: %w", err)
	}
	defer rows.Close()

	var candidates []model.RoutineCandidate
	for rows.Next() {
		var (
			candidate   model.RoutineCandidate
			patternRaw  string
			lastMicro   int64
			evidenceRaw string
		)
		if err := rows.Scan(&candidate.PatternID, &patternRaw, &candidate.Support,
			&candidate.Confidence, &lastMicro, &evidenceRaw); err != nil {
			return nil, fmt.Errorf("repository: scan routine: %w", err)
		}
		if err := json.Unmarshal([]byte(patternRaw), &candidate.Pattern); err != nil {
			return nil, fmt.Errorf("repository: decode pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(evidenceRaw), &candidate.EvidenceSessionIDs); err != nil {
			return nil, fmt.Errorf("repository: decode evidence: %w", err)
		}
		candidate.LastSeenTS = time.UnixMicro(lastMicro).UTC()
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}
