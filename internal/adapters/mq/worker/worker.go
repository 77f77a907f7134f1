// Package worker drains the ingest queue through the processing pipeline
// and into the ledger.
//
// A single worker preserves per-resource arrival order, which the
// debounce and focus-block logic depend on. Writes are buffered and
// flushed when the batch fills or the flush interval elapses, whichever
// comes first.
package worker

import (
	"context"
	"strings"
	"time"

	"github.com/lumora/collector/internal/adapters/mq/queue"
	"github.com/lumora/collector/internal/domain/model"
	"github.com/lumora/collector/pkg/logger"
	"github.com/lumora/collector/pkg/metrics"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	defaultDrainBudget   = 5 * time.Second

	// How long the shutdown drain waits on an open-but-empty queue before
	// concluding the backlog is gone.
	drainIdleWait = 100 * time.Millisecond
)

// Normalizer turns a raw ingest payload into a typed envelope.
type Normalizer interface {
	Normalize(raw map[string]any) (model.EventEnvelope, error)
}

// Guard scrubs an envelope; false means drop it.
type Guard interface {
	Apply(envelope model.EventEnvelope) (model.EventEnvelope, bool)
}

// Prioritizer classifies, debounces, and aggregates envelopes.
type Prioritizer interface {
	Process(envelope model.EventEnvelope, queueRatio float64) []model.EventEnvelope
	Flush(now time.Time) []model.EventEnvelope
}

// Appender persists batches into the ledger.
type Appender interface {
	InsertEvents(ctx context.Context, envelopes []model.EventEnvelope) (int, error)
}

// ActivitySink receives focus-block aggregates keyed by (app, title hash).
type ActivitySink interface {
	UpsertActivityDetail(ctx context.Context, app, titleHash string, durationSec int, ts time.Time) error
}

// Queue defines how the worker receives raw events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Event
	Ratio(ctx context.Context) float64
}

// Pipeline is the single worker draining the queue.
type Pipeline struct {
	queue       Queue
	normalizer  Normalizer
	guard       Guard
	prioritizer Prioritizer
	store       Appender
	activity    ActivitySink
	metrics     *metrics.Manager

	batchSize     int
	flushInterval time.Duration
	drainBudget   time.Duration
	focusType     string

	buffer []model.EventEnvelope

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// New creates the pipeline worker with configuration options.
func New(q Queue, n Normalizer, g Guard, p Prioritizer, store Appender, m *metrics.Manager, opts ...Option) *Pipeline {
	w := &Pipeline{
		queue:         q,
		normalizer:    n,
		guard:         g,
		prioritizer:   p,
		store:         store,
		metrics:       m,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		drainBudget:   defaultDrainBudget,
		focusType:     "os.app_focus_block",
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
		logger:        logger.Get().Named("pipeline"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the queue until ctx is canceled, Shutdown is called, or the
// queue closes. A stop signal does not discard the backlog: buffered
// events are still consumed, bounded by the drain budget, before the
// open focus block is closed and the remaining batch flushed.
func (w *Pipeline) Run(ctx context.Context) {
	defer close(w.done)
	defer w.drain(ctx)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	// The dequeue channel must outlive a canceled run context so the
	// shutdown drain can still reach the buffered events.
	events := w.queue.Dequeue(context.WithoutCancel(ctx))
	for {
		select {
		case <-ctx.Done():
			w.drainBacklog(ctx, events)
			return
		case <-w.shutdown:
			w.drainBacklog(ctx, events)
			return
		case <-ticker.C:
			w.flush(ctx)
		case raw, ok := <-events:
			if !ok {
				return
			}
			w.process(ctx, raw)
			if len(w.buffer) >= w.batchSize {
				w.flush(ctx)
			}
		}
	}
}

// drainBacklog keeps consuming queued events after a stop signal. It
// returns when the queue closes, the backlog stays empty for the idle
// wait, or the drain budget runs out.
func (w *Pipeline) drainBacklog(ctx context.Context, events <-chan queue.Event) {
	flushCtx := context.WithoutCancel(ctx)

	deadline := time.NewTimer(w.drainBudget)
	defer deadline.Stop()
	idle := time.NewTimer(drainIdleWait)
	defer idle.Stop()

	for {
		select {
		case raw, ok := <-events:
			if !ok {
				return
			}
			w.process(flushCtx, raw)
			if len(w.buffer) >= w.batchSize {
				w.flush(flushCtx)
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(drainIdleWait)
		case <-idle.C:
			return
		case <-deadline.C:
			w.logger.Warn(ctx, "drain budget exhausted with events still queued")
			return
		}
	}
}

// Shutdown stops the worker and waits for the backlog drain and final
// flush, bounded by ctx.
func (w *Pipeline) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "pipeline shutdown timed out")
		return ctx.Err()
	}
}

// process runs one raw event through normalize -> privacy -> priority and
// buffers whatever survives.
func (w *Pipeline) process(ctx context.Context, raw queue.Event) {
	envelope, err := w.normalizer.Normalize(raw)
	if err != nil {
		w.metrics.RecordIngestInvalid()
		w.logger.Debug(ctx, "event rejected by normalizer", logger.Error(err))
		return
	}

	envelope, ok := w.guard.Apply(envelope)
	if !ok {
		return
	}

	for _, out := range w.prioritizer.Process(envelope, w.queue.Ratio(ctx)) {
		w.metrics.RecordPriority(string(out.Priority))
		w.metrics.SetLastEventTS(out.TS)
		w.buffer = append(w.buffer, out)
	}
}

// flush writes the buffered batch. On exhausted retries P0 rows stay
// buffered for the next attempt; lower tiers are dropped and counted.
func (w *Pipeline) flush(ctx context.Context) {
	if len(w.buffer) == 0 {
		return
	}

	start := time.Now()
	batch := w.buffer
	w.buffer = nil

	inserted, err := w.store.InsertEvents(ctx, batch)
	w.metrics.RecordFlushLatency(time.Since(start))
	if err != nil {
		w.metrics.RecordStoreInsertFail()
		w.logger.Error(ctx, "batch insert failed",
			logger.Int("batch_size", len(batch)),
			logger.Error(err),
		)
		for _, envelope := range batch {
			if envelope.Priority == model.P0 {
				w.buffer = append(w.buffer, envelope)
			}
		}
		return
	}

	w.metrics.RecordStoreInsertOK()
	w.metrics.RecordIngestOK(inserted)
	w.recordActivity(ctx, batch)
}

// recordActivity folds flushed focus blocks into the activity_details
// aggregation.
func (w *Pipeline) recordActivity(ctx context.Context, batch []model.EventEnvelope) {
	if w.activity == nil {
		return
	}
	for _, envelope := range batch {
		if !strings.EqualFold(envelope.EventType, w.focusType) {
			continue
		}
		titleHash := envelope.WindowID
		if titleHash == "" {
			titleHash = envelope.Resource.ID
		}
		if titleHash == "" || titleHash == "unknown" {
			continue
		}
		duration := durationSec(envelope.Payload)
		if duration <= 0 {
			continue
		}
		if err := w.activity.UpsertActivityDetail(ctx, envelope.App, titleHash, duration, envelope.TS); err != nil {
			w.logger.Debug(ctx, "activity detail upsert failed", logger.Error(err))
		}
	}
}

// drain finishes the pipeline: close the open focus block, then flush
// whatever is buffered. Uses a background context so a canceled run
// context cannot abort the final write.
func (w *Pipeline) drain(ctx context.Context) {
	for _, out := range w.prioritizer.Flush(time.Now().UTC()) {
		w.metrics.RecordPriority(string(out.Priority))
		w.buffer = append(w.buffer, out)
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.drainBudget)
	defer cancel()
	w.flush(flushCtx)
	if len(w.buffer) > 0 {
		w.logger.Warn(ctx, "events unflushed at shutdown", logger.Int("count", len(w.buffer)))
	}
}

func durationSec(payload map[string]any) int {
	switch v := payload["duration_sec"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
