package jobs

import (
	"context"
	"encoding/json"
	"os"
	"regexp"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lumora/collector/internal/adapters/repository"
	"github.com/lumora/collector/internal/domain/model"
	"github.com/lumora/collector/internal/domain/privacy"
	"github.com/lumora/collector/pkg/logger"
)

const defaultHandoffCeiling = 50 * 1024

// HandoffLedger is the slice of the repository the builder needs.
type HandoffLedger interface {
	Cursor(ctx context.Context, key string) (time.Time, bool, error)
	RecentSessions(ctx context.Context, limit int) ([]model.Session, error)
	TopRoutines(ctx context.Context, limit int) ([]model.RoutineCandidate, error)
	EnqueueHandoff(ctx context.Context, pkg model.HandoffPackage, cursorKey string, cursor time.Time) error
}

// profile is one rung of the truncation ladder: how many sessions and
// routines to include, and how many resources to keep per session.
type profile struct {
	sessions  int
	routines  int
	resources int
}

// HandoffJob assembles the bounded package for the downstream consumer.
type HandoffJob struct {
	store      HandoffLedger
	maxBytes   int
	profiles   []profile
	signals    func() map[string]any
	scrub      []*regexp.Regexp
	privacyTag map[string]any
	now        func() time.Time

	running atomic.Bool
	logger  logger.Logger
}

// NewHandoffJob wires the builder. maxSessions/maxRoutines/maxResources
// define the untruncated profile; the ladder below it is fixed.
func NewHandoffJob(store HandoffLedger, maxBytes, maxSessions, maxRoutines, maxResources int, opts ...HandoffOption) *HandoffJob {
	if maxBytes <= 0 {
		maxBytes = defaultHandoffCeiling
	}
	j := &HandoffJob{
		store:    store,
		maxBytes: maxBytes,
		profiles: []profile{
			{sessions: maxSessions, routines: maxRoutines, resources: maxResources},
			{sessions: 3, routines: 5, resources: 10},
			{sessions: 2, routines: 3, resources: 5},
			{sessions: 1, routines: 1, resources: 3},
			{sessions: 1, routines: 0, resources: 0},
		},
		signals:    func() map[string]any { return nil },
		scrub:      privacy.DefaultRules().RedactionPatterns,
		privacyTag: map[string]any{"redaction": "default"},
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.Get().Named("handoff"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// HandoffOption applies a configuration option to the HandoffJob.
type HandoffOption func(*HandoffJob)

// WithSignals sets the runtime-signal snapshot included in each package.
func WithSignals(fn func() map[string]any) HandoffOption {
	return func(j *HandoffJob) {
		if fn != nil {
			j.signals = fn
		}
	}
}

// WithScrubPatterns sets the final-pass redaction patterns.
func WithScrubPatterns(patterns []*regexp.Regexp) HandoffOption {
	return func(j *HandoffJob) {
		if len(patterns) > 0 {
			j.scrub = patterns
		}
	}
}

// WithPrivacyState sets the privacy-state block describing the active
// rule set.
func WithPrivacyState(state map[string]any) HandoffOption {
	return func(j *HandoffJob) {
		if state != nil {
			j.privacyTag = state
		}
	}
}

// Name implements Job.
func (j *HandoffJob) Name() string { return "handoff-builder" }

// Run assembles a package from the newest derived artifacts and enqueues
// it pending. The run is a no-op while no session has closed since the
// previous package.
func (j *HandoffJob) Run(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	defer j.running.Store(false)

	full := j.profiles[0]
	sessions, err := j.store.RecentSessions(ctx, full.sessions)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}

	latest := sessions[0].EndTS
	cursor, ok, err := j.store.Cursor(ctx, repository.CursorHandoff)
	if err != nil {
		return err
	}
	if ok && !latest.After(cursor) {
		return nil
	}

	routines, err := j.store.TopRoutines(ctx, full.routines)
	if err != nil {
		return err
	}

	pkg, err := j.assemble(sessions, routines)
	if err != nil {
		return err
	}
	if err := j.store.EnqueueHandoff(ctx, pkg, repository.CursorHandoff, latest); err != nil {
		return err
	}

	j.logger.Info(ctx, "handoff package enqueued",
		logger.String("package_id", pkg.PackageID),
		logger.Int("size_bytes", pkg.SizeBytes),
		logger.Any("truncated", pkg.Truncated),
	)
	return nil
}

// assemble walks the truncation ladder until the encoded payload fits the
// ceiling; the last rung is emitted regardless, flagged truncated.
func (j *HandoffJob) assemble(sessions []model.Session, routines []model.RoutineCandidate) (model.HandoffPackage, error) {
	now := j.now()
	var (
		payload map[string]any
		size    int
	)
	truncated := false
	for i, prof := range j.profiles {
		payload = j.payloadFor(sessions, routines, prof, now)
		encoded, err := json.Marshal(payload)
		if err != nil {
			return model.HandoffPackage{}, err
		}
		size = len(encoded)
		truncated = i > 0
		if size <= j.maxBytes {
			break
		}
		if i == len(j.profiles)-1 {
			truncated = true
		}
	}

	return model.HandoffPackage{
		PackageID: uuid.NewString(),
		CreatedAt: now,
		Status:    model.HandoffPending,
		Payload:   payload,
		SizeBytes: size,
		Truncated: truncated,
	}, nil
}

func (j *HandoffJob) payloadFor(sessions []model.Session, routines []model.RoutineCandidate, prof profile, now time.Time) map[string]any {
	sessionViews := make([]map[string]any, 0, prof.sessions)
	for _, session := range sessions {
		if len(sessionViews) >= prof.sessions {
			break
		}
		resources := session.Summary.Resources
		if len(resources) > prof.resources {
			resources = resources[:prof.resources]
		}
		sessionViews = append(sessionViews, map[string]any{
			"session_id":    session.SessionID,
			"start_ts":      session.StartTS.Format(time.RFC3339),
			"end_ts":        session.EndTS.Format(time.RFC3339),
			"duration_sec":  int(session.Duration.Seconds()),
			"apps_timeline": session.Summary.AppsTimeline,
			"key_events":    session.Summary.KeyEvents,
			"resources":     resources,
			"counts":        session.Summary.Counts,
		})
	}

	routineViews := make([]map[string]any, 0, prof.routines)
	for _, candidate := range routines {
		if len(routineViews) >= prof.routines {
			break
		}
		routineViews = append(routineViews, map[string]any{
			"pattern_id":   candidate.PatternID,
			"pattern":      candidate.Pattern,
			"support":      candidate.Support,
			"confidence":   candidate.Confidence,
			"last_seen_ts": candidate.LastSeenTS.Format(time.RFC3339),
		})
	}

	hostname, _ := os.Hostname()
	payload := map[string]any{
		"created_at": now.Format(time.RFC3339),
		"device_context": map[string]any{
			"hostname": hostname,
			"os":       runtime.GOOS,
		},
		"sessions":      sessionViews,
		"routines":      routineViews,
		"signals":       j.signals(),
		"privacy_state": j.privacyTag,
	}
	return j.scrubValue(payload).(map[string]any)
}

var hex64Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// scrubValue runs the final redaction pass over every string in the
// payload. Hashed identifiers (64 hex chars) pass through untouched.
func (j *HandoffJob) scrubValue(value any) any {
	switch v := value.(type) {
	case string:
		if hex64Pattern.MatchString(v) {
			return v
		}
		return privacy.MaskPatterns(v, j.scrub)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = j.scrubValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i, item := range v {
			out[i] = j.scrubValue(item).(map[string]any)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = j.scrubValue(item).(string)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = j.scrubValue(item)
		}
		return out
	default:
		return v
	}
}
