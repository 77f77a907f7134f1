// Package queue is the bounded buffer between ingest and the pipeline.
package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of buffered events.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithPolicy sets the overflow policy, reject-new or drop-oldest.
func WithPolicy(policy string) Option {
	return func(q *InMemoryQueue) {
		if policy == PolicyRejectNew || policy == PolicyDropOldest {
			q.policy = policy
		}
	}
}

// WithRecorder sets the metrics sink for depth and drop reporting.
func WithRecorder(r Recorder) Option {
	return func(q *InMemoryQueue) {
		q.metrics = r
	}
}
