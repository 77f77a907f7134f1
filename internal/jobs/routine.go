package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lumora/collector/internal/adapters/repository"
	"github.com/lumora/collector/internal/domain/model"
	"github.com/lumora/collector/internal/domain/routine"
	"github.com/lumora/collector/pkg/logger"
)

// RoutineLedger is the slice of the repository the mining job needs.
type RoutineLedger interface {
	Cursor(ctx context.Context, key string) (time.Time, bool, error)
	SessionsSince(ctx context.Context, since time.Time) ([]model.Session, error)
	ReplaceRoutines(ctx context.Context, candidates []model.RoutineCandidate, cursorKey string, cursor time.Time) error
}

// RoutineJob mines routine candidates from closed sessions.
type RoutineJob struct {
	store    RoutineLedger
	miner    *routine.Miner
	lookback time.Duration
	force    bool
	now      func() time.Time

	running atomic.Bool
	logger  logger.Logger
}

// NewRoutineJob wires the mining job over a lookback window.
func NewRoutineJob(store RoutineLedger, miner *routine.Miner, lookback time.Duration, opts ...RoutineOption) *RoutineJob {
	j := &RoutineJob{
		store:    store,
		miner:    miner,
		lookback: lookback,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.Get().Named("routine-miner"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name implements Job.
func (j *RoutineJob) Name() string { return "routine-miner" }

// Run mines the lookback window and replaces the candidate table
// wholesale. When no session has closed since the previous run the table
// is left untouched.
func (j *RoutineJob) Run(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	defer j.running.Store(false)

	now := j.now()
	sessions, err := j.store.SessionsSince(ctx, now.Add(-j.lookback))
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}

	latest := sessions[len(sessions)-1].EndTS
	if !j.force {
		cursor, ok, err := j.store.Cursor(ctx, repository.CursorRoutine)
		if err != nil {
			return err
		}
		if ok && !latest.After(cursor) {
			// Nothing new closed since the last mining run.
			return nil
		}
	}

	candidates := j.miner.Mine(sessions, now)
	if err := j.store.ReplaceRoutines(ctx, candidates, repository.CursorRoutine, latest); err != nil {
		return err
	}

	j.logger.Info(ctx, "routines mined",
		logger.Int("sessions", len(sessions)),
		logger.Int("candidates", len(candidates)),
	)
	return nil
}
