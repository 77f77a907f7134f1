package worker

import (
	"time"

	"github.com/lumora/collector/pkg/logger"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets the row count that triggers a flush.
func WithBatchSize(size int) Option {
	return func(w *Pipeline) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithFlushInterval sets the time bound on a partially filled batch.
func WithFlushInterval(interval time.Duration) Option {
	return func(w *Pipeline) {
		if interval > 0 {
			w.flushInterval = interval
		}
	}
}

// WithDrainBudget bounds how long shutdown keeps consuming the queue
// backlog before the final flush.
func WithDrainBudget(budget time.Duration) Option {
	return func(w *Pipeline) {
		if budget > 0 {
			w.drainBudget = budget
		}
	}
}

// WithActivitySink enables the focus-time aggregation.
func WithActivitySink(sink ActivitySink) Option {
	return func(w *Pipeline) {
		w.activity = sink
	}
}

// WithFocusBlockEventType sets the event type fed to the activity sink.
func WithFocusBlockEventType(eventType string) Option {
	return func(w *Pipeline) {
		if eventType != "" {
			w.focusType = eventType
		}
	}
}

// WithLogger overrides the default named logger.
func WithLogger(log logger.Logger) Option {
	return func(w *Pipeline) {
		if log != nil {
			w.logger = log
		}
	}
}
