package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lumora/collector/internal/adapters/repository"
	"github.com/lumora/collector/internal/domain/model"
	"github.com/lumora/collector/internal/domain/sessionize"
	"github.com/lumora/collector/pkg/logger"
)

const defaultEventBatchLimit = 10000

// SessionLedger is the slice of the repository the sessionizer job needs.
type SessionLedger interface {
	Cursor(ctx context.Context, key string) (time.Time, bool, error)
	EventsSince(ctx context.Context, since time.Time, limit int) ([]model.SessionEvent, error)
	SaveSessions(ctx context.Context, sessions []model.Session, cursorKey string, cursor time.Time) error
}

// SessionizerJob derives sessions from the committed ledger.
type SessionizerJob struct {
	store       SessionLedger
	sessionizer *sessionize.Sessionizer
	batchLimit  int
	fullWindow  bool
	now         func() time.Time

	running atomic.Bool
	logger  logger.Logger
}

// NewSessionizerJob wires the job. now may be overridden in tests.
func NewSessionizerJob(store SessionLedger, s *sessionize.Sessionizer, opts ...SessionizerOption) *SessionizerJob {
	j := &SessionizerJob{
		store:       store,
		sessionizer: s,
		batchLimit:  defaultEventBatchLimit,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.Get().Named("sessionizer"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name implements Job.
func (j *SessionizerJob) Name() string { return "sessionizer" }

// Run reads ledger rows past the saved cursor, derives closed sessions,
// and persists them together with the advanced cursor. The open tail is
// left for the next run; events inside it are re-read because the cursor
// only advances past closed sessions.
func (j *SessionizerJob) Run(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	defer j.running.Store(false)

	since := time.Time{}
	if !j.fullWindow {
		cursor, ok, err := j.store.Cursor(ctx, repository.CursorSessionized)
		if err != nil {
			return err
		}
		if ok {
			// The cursor sits on the last closed session's end; resume
			// just past it.
			since = cursor.Add(time.Microsecond)
		}
	}

	events, err := j.store.EventsSince(ctx, since, j.batchLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	// A full batch means more rows may exist past the read; the window
	// cannot extend beyond the last row seen or a tail whose gap is still
	// unknown would be closed early.
	windowEnd := j.now()
	if len(events) == j.batchLimit {
		windowEnd = events[len(events)-1].TS
	}

	sessions, open := j.sessionizer.Run(events, windowEnd)
	if len(sessions) == 0 {
		return nil
	}

	newCursor := sessions[len(sessions)-1].EndTS
	if err := j.store.SaveSessions(ctx, sessions, repository.CursorSessionized, newCursor); err != nil {
		return err
	}

	j.logger.Info(ctx, "sessions derived",
		logger.Int("sessions", len(sessions)),
		logger.Int("open_tail", len(open)),
		logger.Time("cursor", newCursor),
	)
	return nil
}
