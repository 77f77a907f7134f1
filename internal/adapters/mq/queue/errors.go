package queue

import "errors"

// ErrQueueClosed marks operations on a closed queue.
var ErrQueueClosed = errors.New("queue is closed")
