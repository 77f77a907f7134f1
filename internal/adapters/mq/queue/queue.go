// Package queue is the bounded buffer between the ingest transport and
// the pipeline worker.
//
// Enqueue never blocks: under the reject-new policy a full queue refuses
// the event (the transport answers 429); under drop-oldest the oldest
// buffered event is discarded to make room. Dequeue hands out a channel
// the single pipeline worker drains.
package queue

import (
	"context"
	"sync"
)

// Event is the raw, not-yet-normalized payload flowing through the queue.
type Event = map[string]any

// Overflow policies.
const (
	PolicyRejectNew  = "reject-new"
	PolicyDropOldest = "drop-oldest"
)

const defaultCapacity = 1000

// Recorder is the slice of the metrics manager the queue reports into.
type Recorder interface {
	UpdateQueueDepth(depth int)
	RecordDrop(reason string)
}

// Queue provides non-blocking enqueue and channel-based dequeue
// semantics.
type Queue interface {
	Enqueue(ctx context.Context, e Event) bool
	Dequeue(ctx context.Context) <-chan Event
	Len(ctx context.Context) int
	Ratio(ctx context.Context) float64
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int
	policy   string
	metrics  Recorder

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
		policy:   PolicyRejectNew,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)
	q.updateDepth()
	return q
}

// Enqueue adds an event. Returns false when the event was not accepted:
// the queue is closed, the context is done, or the queue is full under
// the reject-new policy.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || ctx.Err() != nil {
		return false
	}

	for {
		select {
		case q.events <- e:
			q.updateDepth()
			return true
		default:
		}
		if q.policy != PolicyDropOldest {
			return false
		}
		// Make room by discarding the oldest buffered event.
		select {
		case <-q.events:
			if q.metrics != nil {
				q.metrics.RecordDrop("queue_overflow")
			}
		default:
		}
	}
}

// Dequeue returns a channel that receives events as they become
// available. The channel closes when the queue closes or ctx is done.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for event := range q.events {
			select {
			case out <- event:
				q.updateDepth()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of buffered events.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.events)
}

// Ratio returns the current fill level in [0, 1]; the priority processor
// uses it for pressure shedding.
func (q *InMemoryQueue) Ratio(_ context.Context) float64 {
	return float64(len(q.events)) / float64(q.capacity)
}

// Close stops accepting events; the dequeue channel drains what remains
// and then closes. Closing twice returns ErrQueueClosed.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed returns true once the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) updateDepth() {
	if q.metrics != nil {
		q.metrics.UpdateQueueDepth(len(q.events))
	}
}
