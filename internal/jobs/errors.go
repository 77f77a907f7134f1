package jobs

import "errors"

// Sentinel kinds for job scheduling errors.
var (
	// ErrJobRunning marks an invocation skipped because the previous run
	// of the same job has not finished.
	ErrJobRunning = errors.New("job already running")
)
