package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func rawEvent(id string) Event {
	return Event{"event_id": id}
}

func TestEnqueueDequeue(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue(WithCapacity(4))
	defer q.Close()

	if !q.Enqueue(ctx, rawEvent("e1")) {
		t.Fatal("enqueue should accept below capacity")
	}
	if got := q.Len(ctx); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}

	select {
	case event := <-q.Dequeue(ctx):
		if event["event_id"] != "e1" {
			t.Fatalf("dequeued %v, want e1", event["event_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue timed out")
	}
}

func TestRejectNewWhenFull(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue(WithCapacity(2), WithPolicy(PolicyRejectNew))
	defer q.Close()

	if !q.Enqueue(ctx, rawEvent("e1")) || !q.Enqueue(ctx, rawEvent("e2")) {
		t.Fatal("enqueue should accept up to capacity")
	}
	if q.Enqueue(ctx, rawEvent("e3")) {
		t.Fatal("enqueue should reject when full")
	}
	if got := q.Ratio(ctx); got != 1.0 {
		t.Fatalf("Ratio = %v, want 1.0", got)
	}
}

func TestDropOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue(WithCapacity(2), WithPolicy(PolicyDropOldest))
	defer q.Close()

	q.Enqueue(ctx, rawEvent("e1"))
	q.Enqueue(ctx, rawEvent("e2"))
	if !q.Enqueue(ctx, rawEvent("e3")) {
		t.Fatal("drop-oldest enqueue should accept when full")
	}

	got := <-q.Dequeue(ctx)
	if got["event_id"] != "e2" {
		t.Fatalf("oldest surviving event = %v, want e2", got["event_id"])
	}
}

func TestCloseDrainsThenStops(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue(WithCapacity(4))

	q.Enqueue(ctx, rawEvent("e1"))
	q.Enqueue(ctx, rawEvent("e2"))
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if q.Enqueue(ctx, rawEvent("e3")) {
		t.Fatal("enqueue should reject after close")
	}
	if !q.IsClosed() {
		t.Fatal("IsClosed should report true")
	}

	var drained []Event
	for event := range q.Dequeue(ctx) {
		drained = append(drained, event)
	}
	if len(drained) != 2 {
		t.Fatalf("drained %d events, want 2", len(drained))
	}
}

func TestCloseTwiceIsSafe(t *testing.T) {
	q := NewInMemoryQueue()
	if err := q.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := q.Close(); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("second close = %v, want ErrQueueClosed", err)
	}
}
