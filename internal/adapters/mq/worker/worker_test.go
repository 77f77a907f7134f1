package worker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/lumora/collector/internal/adapters/mq/queue"
	"github.com/lumora/collector/internal/domain/model"
	"github.com/lumora/collector/pkg/logger"
	"github.com/lumora/collector/pkg/metrics"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type passNormalizer struct{}

func (passNormalizer) Normalize(raw map[string]any) (model.EventEnvelope, error) {
	id, _ := raw["event_id"].(string)
	if id == "" {
		return model.EventEnvelope{}, errors.New("missing event_id")
	}
	eventType, _ := raw["event_type"].(string)
	priority, _ := raw["priority"].(string)
	return model.EventEnvelope{
		EventID:   id,
		TS:        time.Now().UTC(),
		EventType: eventType,
		Priority:  model.Priority(priority),
		Payload:   map[string]any{},
	}, nil
}

type passGuard struct{}

func (passGuard) Apply(e model.EventEnvelope) (model.EventEnvelope, bool) { return e, true }

type passPrioritizer struct{}

func (passPrioritizer) Process(e model.EventEnvelope, _ float64) []model.EventEnvelope {
	return []model.EventEnvelope{e}
}

func (passPrioritizer) Flush(time.Time) []model.EventEnvelope { return nil }

type captureStore struct {
	mu      sync.Mutex
	batches [][]model.EventEnvelope
	failing bool
}

func (c *captureStore) InsertEvents(_ context.Context, envelopes []model.EventEnvelope) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return 0, errors.New("database is locked")
	}
	c.batches = append(c.batches, envelopes)
	return len(envelopes), nil
}

func (c *captureStore) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, batch := range c.batches {
		n += len(batch)
	}
	return n
}

func newTestPipeline(store *captureStore, opts ...Option) (*Pipeline, *queue.InMemoryQueue) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(64))
	w := New(q, passNormalizer{}, passGuard{}, passPrioritizer{}, store, metrics.NewManager(), opts...)
	return w, q
}

func TestPipelineFlushesOnBatchSize(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &captureStore{}
	w, q := newTestPipeline(store, WithBatchSize(2), WithFlushInterval(time.Hour))
	go w.Run(ctx)

	q.Enqueue(ctx, map[string]any{"event_id": "e1", "event_type": "os.file_opened"})
	q.Enqueue(ctx, map[string]any{"event_id": "e2", "event_type": "os.file_opened"})

	deadline := time.After(2 * time.Second)
	for store.total() < 2 {
		select {
		case <-deadline:
			t.Fatalf("flushed %d events, want 2", store.total())
		case <-time.After(10 * time.Millisecond):
		}
	}
	q.Close()
	w.Shutdown(context.Background())
}

func TestPipelineFlushesOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &captureStore{}
	w, q := newTestPipeline(store, WithBatchSize(100), WithFlushInterval(time.Hour))
	go w.Run(ctx)

	q.Enqueue(ctx, map[string]any{"event_id": "e1", "event_type": "os.file_opened"})
	time.Sleep(50 * time.Millisecond)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelShutdown()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if store.total() != 1 {
		t.Fatalf("flushed %d events, want 1", store.total())
	}
	q.Close()
}

func TestPipelineDrainsBacklogOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &captureStore{}
	q := queue.NewInMemoryQueue(queue.WithCapacity(256))
	w := New(q, passNormalizer{}, passGuard{}, passPrioritizer{}, store, metrics.NewManager(),
		WithBatchSize(100), WithFlushInterval(time.Hour))

	// Fill the queue before the worker sees a single event, then stop
	// immediately: the buffered P0 events must still reach the store.
	for i := 0; i < 200; i++ {
		if !q.Enqueue(ctx, map[string]any{
			"event_id":   "e" + strconv.Itoa(i),
			"event_type": "outlook.send_clicked",
			"priority":   "P0",
		}) {
			t.Fatalf("enqueue %d refused", i)
		}
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close queue: %v", err)
	}

	go w.Run(ctx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if store.total() != 200 {
		t.Fatalf("flushed %d events, want all 200", store.total())
	}
}

func TestPipelineSkipsInvalidEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &captureStore{}
	w, q := newTestPipeline(store, WithBatchSize(1), WithFlushInterval(time.Hour))
	go w.Run(ctx)

	q.Enqueue(ctx, map[string]any{"event_type": "os.file_opened"}) // no event_id
	q.Enqueue(ctx, map[string]any{"event_id": "e1", "event_type": "os.file_opened"})

	deadline := time.After(2 * time.Second)
	for store.total() < 1 {
		select {
		case <-deadline:
			t.Fatal("valid event never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if store.total() != 1 {
		t.Fatalf("flushed %d events, want 1", store.total())
	}
	q.Close()
	w.Shutdown(context.Background())
}

func TestPipelineKeepsP0OnFailedFlush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &captureStore{failing: true}
	w, q := newTestPipeline(store, WithBatchSize(2), WithFlushInterval(time.Hour))
	go w.Run(ctx)

	q.Enqueue(ctx, map[string]any{"event_id": "e1", "event_type": "outlook.send_clicked", "priority": "P0"})
	q.Enqueue(ctx, map[string]any{"event_id": "e2", "event_type": "os.clipboard_meta", "priority": "P2"})
	time.Sleep(100 * time.Millisecond)

	store.mu.Lock()
	store.failing = false
	store.mu.Unlock()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelShutdown()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if store.total() != 1 {
		t.Fatalf("flushed %d events, want only the retried P0", store.total())
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.batches[0][0].Priority != model.P0 {
		t.Fatalf("retried event priority = %s, want P0", store.batches[0][0].Priority)
	}
	q.Close()
}
