// Package jobs holds the periodic derivation jobs and their scheduler.
//
// Jobs read only committed ledger rows and commit their cursor in the
// same transaction as their results, so an aborted run retries the same
// window on the next tick. Each job carries a single-flight guard:
// overlapping invocations are skipped, not queued.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lumora/collector/pkg/logger"
)

// Job is one periodic derivation task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduled struct {
	job      Job
	interval time.Duration
}

// Scheduler ticks each registered job on its own interval.
type Scheduler struct {
	entries []scheduled
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	logger  logger.Logger
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{logger: logger.Get().Named("scheduler")}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(job Job, interval time.Duration) {
	if interval > 0 {
		s.entries = append(s.entries, scheduled{job: job, interval: interval})
	}
}

// Start launches one ticking goroutine per job. Each job also runs once
// shortly after start so a restart does not wait a full interval to catch
// up.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, entry := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, entry)
	}
}

// Stop cancels all job loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, entry scheduled) {
	defer s.wg.Done()

	ticker := time.NewTicker(entry.interval)
	defer ticker.Stop()

	// Initial catch-up run.
	s.runOnce(ctx, entry.job)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, entry.job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := job.Run(ctx)
	switch {
	case errors.Is(err, ErrJobRunning):
		s.logger.Warn(ctx, "job still running, skipping tick", logger.String("job", job.Name()))
	case err != nil:
		s.logger.Error(ctx, "job run failed",
			logger.String("job", job.Name()),
			logger.Error(err),
		)
	default:
		s.logger.Debug(ctx, "job run finished",
			logger.String("job", job.Name()),
			logger.Duration("elapsed", time.Since(start)),
		)
	}
}
