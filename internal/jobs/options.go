package jobs

// SessionizerOption applies a configuration option to the sessionizer job.
type SessionizerOption func(*SessionizerJob)

// WithSessionizerBatchLimit caps how many ledger rows a single run reads.
func WithSessionizerBatchLimit(limit int) SessionizerOption {
	return func(j *SessionizerJob) {
		if limit > 0 {
			j.batchLimit = limit
		}
	}
}

// WithSessionizerFullWindow makes the job ignore the saved cursor and
// re-derive sessions from the start of the ledger. Saves are upserts
// keyed by the deterministic session id, so a full run converges to the
// same rows.
func WithSessionizerFullWindow() SessionizerOption {
	return func(j *SessionizerJob) {
		j.fullWindow = true
	}
}

// RoutineOption applies a configuration option to the mining job.
type RoutineOption func(*RoutineJob)

// WithRoutineForcedRun disables the changed-since-last-run cursor check,
// mining the lookback window even when no new session has closed.
func WithRoutineForcedRun() RoutineOption {
	return func(j *RoutineJob) {
		j.force = true
	}
}
