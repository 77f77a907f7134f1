// Package service assembles the collector pipeline and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	eventqueue "github.com/lumora/collector/internal/adapters/mq/queue"
	"github.com/lumora/collector/internal/adapters/mq/worker"
	"github.com/lumora/collector/internal/adapters/repository"
	"github.com/lumora/collector/internal/config"
	"github.com/lumora/collector/internal/domain/model"
	"github.com/lumora/collector/internal/domain/normalize"
	"github.com/lumora/collector/internal/domain/priority"
	"github.com/lumora/collector/internal/domain/privacy"
	"github.com/lumora/collector/internal/domain/routine"
	"github.com/lumora/collector/internal/domain/sessionize"
	"github.com/lumora/collector/internal/jobs"
	"github.com/lumora/collector/pkg/logger"
	"github.com/lumora/collector/pkg/metrics"
)

// Service owns the pipeline components and the derivation jobs.
type Service struct {
	mu sync.Mutex

	cfg     *config.Config
	metrics *metrics.Manager

	store     *repository.Store
	queue     *eventqueue.InMemoryQueue
	pipeline  *worker.Pipeline
	scheduler *jobs.Scheduler
	rules     *privacy.Rules

	started bool
	logger  logger.Logger
}

// New constructs the service from an immutable config and an injected
// metrics manager.
func New(cfg *config.Config, m *metrics.Manager) *Service {
	return &Service{
		cfg:     cfg,
		metrics: m,
		logger:  logger.Get().Named("service"),
	}
}

// Start opens the store, wires the pipeline, and launches the worker and
// the periodic jobs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	cfg := s.cfg

	store, err := repository.Open(ctx, cfg.DBPath,
		repository.WithRetry(cfg.Store.RetryAttempts, time.Duration(cfg.Store.RetryBackoffMS)*time.Millisecond),
		repository.WithBusyTimeout(time.Duration(cfg.Store.BusyTimeoutMS)*time.Millisecond),
		repository.WithWAL(cfg.Store.WALMode),
	)
	if err != nil {
		return fmt.Errorf("service: open store: %w", err)
	}
	s.store = store

	rules, err := privacy.LoadRules(cfg.Privacy.RulesPath)
	if err != nil {
		s.logger.Warn(ctx, "privacy rules not loaded, using defaults",
			logger.String("path", cfg.Privacy.RulesPath),
			logger.Error(err),
		)
		rules = privacy.DefaultRules()
	}
	s.rules = rules

	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(cfg.Queue.Size),
		eventqueue.WithPolicy(cfg.Queue.Policy),
		eventqueue.WithRecorder(s.metrics),
	)

	mode, err := normalize.ParseMode(cfg.ValidationMode)
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}
	normalizer := normalize.New(mode)
	guard := privacy.NewGuard(rules, cfg.Privacy.HashSalt, s.metrics)
	prioritizer := priority.New(
		priority.WithDebounceWindow(time.Duration(cfg.Priority.DebounceMS)*time.Millisecond),
		priority.WithMaxOpenFocus(time.Duration(cfg.Priority.MaxOpenFocusSeconds)*time.Second),
		priority.WithFocusEventTypes(cfg.Priority.FocusEventTypes),
		priority.WithFocusBlockEventType(cfg.Priority.FocusBlockEventType),
		priority.WithDropRatios(cfg.Priority.DropP2QueueRatio, cfg.Priority.DropP1QueueRatio),
		priority.WithExtraTiers(cfg.Priority.P0EventTypes, cfg.Priority.P1EventTypes, cfg.Priority.P2EventTypes),
		priority.WithRecorder(s.metrics),
	)

	workerOpts := []worker.Option{
		worker.WithBatchSize(cfg.Store.BatchSize),
		worker.WithFlushInterval(time.Duration(cfg.Store.FlushMS) * time.Millisecond),
		worker.WithDrainBudget(time.Duration(cfg.Queue.ShutdownDrainSeconds) * time.Second),
		worker.WithFocusBlockEventType(cfg.Priority.FocusBlockEventType),
	}
	if cfg.ActivityDetail.Enabled {
		workerOpts = append(workerOpts, worker.WithActivitySink(store))
	}
	s.pipeline = worker.New(s.queue, normalizer, guard, prioritizer, store, s.metrics, workerOpts...)
	go s.pipeline.Run(ctx)

	s.scheduler = jobs.NewScheduler()
	s.registerJobs()
	s.scheduler.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "collector service started",
		logger.String("db_path", cfg.DBPath),
		logger.Int("queue_size", cfg.Queue.Size),
		logger.String("queue_policy", cfg.Queue.Policy),
	)
	return nil
}

func (s *Service) registerJobs() {
	cfg := s.cfg

	sessionJob := jobs.NewSessionizerJob(s.store, sessionize.New(
		sessionize.WithGap(time.Duration(cfg.Sessionizer.GapMinutes)*time.Minute),
	))
	s.scheduler.Add(sessionJob, time.Duration(cfg.Sessionizer.IntervalMinutes)*time.Minute)

	routineJob := jobs.NewRoutineJob(s.store, routine.New(
		routine.WithNGramBounds(cfg.Routine.NMin, cfg.Routine.NMax),
		routine.WithMinSupport(cfg.Routine.MinSupport),
		routine.WithMaxPatterns(cfg.Routine.MaxPatterns),
		routine.WithMaxEvidence(cfg.Routine.MaxEvidence),
	), time.Duration(cfg.Routine.LookbackDays*24)*time.Hour)
	s.scheduler.Add(routineJob, time.Duration(cfg.Routine.IntervalMinutes)*time.Minute)

	handoffJob := jobs.NewHandoffJob(s.store,
		cfg.Handoff.MaxSizeBytes,
		cfg.Handoff.RecentSessions,
		cfg.Handoff.RecentRoutines,
		cfg.Handoff.MaxResources,
		jobs.WithScrubPatterns(s.rules.RedactionPatterns),
		jobs.WithSignals(func() map[string]any {
			return map[string]any{
				"queue_depth":   s.queue.Len(context.Background()),
				"db_size_bytes": s.store.Size(),
			}
		}),
		jobs.WithPrivacyState(map[string]any{
			"denylist_action":  s.rules.DenylistAction,
			"keep_domain_only": s.rules.KeepDomainOnly,
			"allow_full_url":   s.rules.AllowFullURL,
		}),
	)
	s.scheduler.Add(handoffJob, time.Duration(cfg.Handoff.IntervalMinutes)*time.Minute)

	if cfg.Retention.Enabled {
		retentionJob := jobs.NewRetentionJob(s.store, jobs.RetentionPolicy{
			RawEventsDays:       cfg.Retention.RawEventsDays,
			SessionsDays:        cfg.Retention.SessionsDays,
			RoutinesDays:        cfg.Retention.RoutinesDays,
			HandoffDays:         cfg.Retention.HandoffDays,
			ActivityDetailsDays: cfg.Retention.ActivityDetailsDays,
			BatchSize:           cfg.Retention.BatchSize,
			MaxDBBytes:          int64(cfg.Retention.MaxDBMB) * 1024 * 1024,
			VacuumEvery:         time.Duration(cfg.Retention.VacuumHours) * time.Hour,
		})
		s.scheduler.Add(retentionJob, time.Duration(cfg.Retention.IntervalMinutes)*time.Minute)
	}
}

// Stop drains the pipeline within the configured budget, persists what
// remains, and closes the store.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping collector service")

	s.scheduler.Stop()

	// Closing the queue lets the worker drain the backlog; shutdown then
	// waits up to the drain budget before forcing the final flush.
	_ = s.queue.Close()
	drain := time.Duration(s.cfg.Queue.ShutdownDrainSeconds) * time.Second
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drain)
	defer cancel()
	if err := s.pipeline.Shutdown(drainCtx); err != nil {
		s.logger.Warn(ctx, "pipeline drain incomplete", logger.Error(err))
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "store close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "collector service stopped")
}

// Enqueue implements the ingest dependency: count the arrival and push
// the raw event into the bounded queue.
func (s *Service) Enqueue(ctx context.Context, e map[string]any) bool {
	s.metrics.RecordIngestReceived(1)
	return s.queue.Enqueue(ctx, e)
}

// GetStats snapshots the pipeline counters for /stats.
func (s *Service) GetStats() map[string]any {
	return s.metrics.Snapshot(s.store.Size())
}

// NextPendingHandoff exposes the package queue to the API layer.
func (s *Service) NextPendingHandoff(ctx context.Context) (model.HandoffPackage, error) {
	return s.store.NextPendingHandoff(ctx)
}

// ConsumeHandoff transitions a pending package to consumed.
func (s *Service) ConsumeHandoff(ctx context.Context, packageID string) error {
	return s.store.ConsumeHandoff(ctx, packageID)
}
