// Package sessionize groups a time-ordered event stream into bounded work
// sessions.
//
// Boundary detection is a pure function of the event stream and the window
// end: re-running over the same window always yields the same sessions,
// which is what lets the derivation job resume from a cursor after a
// crash.
package sessionize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/lumora/collector/internal/domain/model"
)

// Idle markers end the current session; the marker itself belongs to no
// session.
var idleCloseTypes = map[string]bool{
	"os.idle_start": true,
}

// Sessionizer detects session boundaries and builds summaries.
type Sessionizer struct {
	gap          time.Duration
	maxResources int
}

// New creates a Sessionizer. The default gap matches a typical
// walk-away-from-the-desk pause.
func New(opts ...Option) *Sessionizer {
	s := &Sessionizer{
		gap:          15 * time.Minute,
		maxResources: 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split partitions events (which must be ordered by timestamp) into closed
// session windows plus an open tail. A session closes when:
//
//   - the gap to the next event reaches the threshold (closed before the
//     gap),
//   - an idle marker arrives (closed, marker excluded), or
//   - a P0 event arrives (closed, event included).
//
// The tail also closes when windowEnd is at least one gap past its last
// event; otherwise it is returned open so the caller can retry it on the
// next run.
func (s *Sessionizer) Split(events []model.SessionEvent, windowEnd time.Time) (closed [][]model.SessionEvent, open []model.SessionEvent) {
	var current []model.SessionEvent

	flush := func() {
		if len(current) > 0 {
			closed = append(closed, current)
			current = nil
		}
	}

	for _, event := range events {
		if len(current) > 0 && event.TS.Sub(current[len(current)-1].TS) >= s.gap {
			flush()
		}
		if idleCloseTypes[strings.ToLower(event.EventType)] {
			flush()
			continue
		}
		current = append(current, event)
		if event.Priority == model.P0 {
			flush()
		}
	}

	if len(current) > 0 && windowEnd.Sub(current[len(current)-1].TS) >= s.gap {
		flush()
	}
	return closed, current
}

// Build turns one closed window into a persistable Session.
func (s *Sessionizer) Build(events []model.SessionEvent) model.Session {
	start := events[0].TS
	end := events[len(events)-1].TS
	return model.Session{
		SessionID: sessionID(start, end),
		StartTS:   start,
		EndTS:     end,
		Duration:  end.Sub(start),
		Summary:   s.summarize(events),
	}
}

// Run splits and builds in one pass, returning the sessions ready for
// storage plus the open tail.
func (s *Sessionizer) Run(events []model.SessionEvent, windowEnd time.Time) ([]model.Session, []model.SessionEvent) {
	windows, open := s.Split(events, windowEnd)
	sessions := make([]model.Session, 0, len(windows))
	for _, window := range windows {
		sessions = append(sessions, s.Build(window))
	}
	return sessions, open
}

// sessionID derives a stable identifier from the session boundaries so
// re-derivation over the same window replaces rather than duplicates.
func sessionID(start, end time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", start.UnixNano(), end.UnixNano())))
	return "sess-" + hex.EncodeToString(sum[:8])
}
