package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lumora/collector/internal/adapters/repository"
	"github.com/lumora/collector/pkg/logger"
)

// RetentionStore is the slice of the repository the sweeper needs.
type RetentionStore interface {
	Sweep(ctx context.Context, policy repository.SweepPolicy) (repository.SweepResult, error)
	ExpireHandoffs(ctx context.Context, cutoff time.Time) (int64, error)
	Checkpoint(ctx context.Context) error
	Vacuum(ctx context.Context) error
	Size() int64
}

// RetentionPolicy holds the per-table age limits in days. Zero disables
// that table's sweep.
type RetentionPolicy struct {
	RawEventsDays       int
	SessionsDays        int
	RoutinesDays        int
	HandoffDays         int
	ActivityDetailsDays int
	BatchSize           int

	// MaxDBBytes triggers a vacuum when exceeded; VacuumEvery bounds how
	// often that may happen.
	MaxDBBytes  int64
	VacuumEvery time.Duration
}

// RetentionJob ages out rows and keeps the database file bounded.
type RetentionJob struct {
	store  RetentionStore
	policy RetentionPolicy
	now    func() time.Time

	running    atomic.Bool
	lastVacuum time.Time
	logger     logger.Logger
}

// NewRetentionJob wires the sweeper.
func NewRetentionJob(store RetentionStore, policy RetentionPolicy) *RetentionJob {
	if policy.VacuumEvery <= 0 {
		policy.VacuumEvery = 24 * time.Hour
	}
	return &RetentionJob{
		store:  store,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Get().Named("retention"),
	}
}

// Name implements Job.
func (j *RetentionJob) Name() string { return "retention" }

// Run expires stale pending handoffs, sweeps aged rows, truncates the
// WAL, and vacuums when the file is past its size ceiling.
func (j *RetentionJob) Run(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	defer j.running.Store(false)

	now := j.now()

	if j.policy.HandoffDays > 0 {
		expired, err := j.store.ExpireHandoffs(ctx, now.AddDate(0, 0, -j.policy.HandoffDays))
		if err != nil {
			return err
		}
		if expired > 0 {
			j.logger.Info(ctx, "handoff packages expired", logger.Int64("count", expired))
		}
	}

	result, err := j.store.Sweep(ctx, repository.SweepPolicy{
		EventsBefore:          dayCutoff(now, j.policy.RawEventsDays),
		SessionsBefore:        dayCutoff(now, j.policy.SessionsDays),
		RoutinesBefore:        dayCutoff(now, j.policy.RoutinesDays),
		HandoffsBefore:        dayCutoff(now, j.policy.HandoffDays),
		ActivityDetailsBefore: dayCutoff(now, j.policy.ActivityDetailsDays),
		BatchSize:             j.policy.BatchSize,
	})
	if err != nil {
		return err
	}

	if err := j.store.Checkpoint(ctx); err != nil {
		return err
	}

	if j.policy.MaxDBBytes > 0 &&
		j.store.Size() > j.policy.MaxDBBytes &&
		now.Sub(j.lastVacuum) >= j.policy.VacuumEvery {
		if err := j.store.Vacuum(ctx); err != nil {
			return err
		}
		j.lastVacuum = now
		j.logger.Info(ctx, "database vacuumed", logger.Int64("size_bytes", j.store.Size()))
	}

	if result.Events+result.Sessions+result.Routines+result.Handoffs+result.ActivityDetails > 0 {
		j.logger.Info(ctx, "retention sweep finished",
			logger.Int64("events", result.Events),
			logger.Int64("sessions", result.Sessions),
			logger.Int64("routines", result.Routines),
			logger.Int64("handoffs", result.Handoffs),
			logger.Int64("activity_details", result.ActivityDetails),
		)
	}
	return nil
}

func dayCutoff(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -days)
}
