package model

import "time"

// SessionEvent is the slim view of a ledger row consumed by the
// sessionizer and routine miner. Derivation jobs never see raw payloads
// beyond what the privacy guard let through.
type SessionEvent struct {
	TS           time.Time
	EventType    string
	Priority     Priority
	App          string
	ResourceType string
	ResourceID   string
	Payload      map[string]any
}

// AppSpan is one entry of a session's per-app activity timeline, derived
// from focus-block durations.
type AppSpan struct {
	App string `json:"app"`
	Sec int    `json:"sec"`
}

// SessionSummary is the derived description of a closed session.
// Resources carries hashed resource ids, deduplicated and capped.
type SessionSummary struct {
	AppsTimeline []AppSpan      `json:"apps_timeline"`
	KeyEvents    []string       `json:"key_events"`
	Resources    []string       `json:"resources"`
	Counts       PriorityCounts `json:"counts"`
}

// PriorityCounts tallies session events by tier.
type PriorityCounts struct {
	Total int `json:"total"`
	P0    int `json:"p0"`
	P1    int `json:"p1"`
	P2    int `json:"p2"`
}

// Session is a contiguous work unit. It is never mutated after creation;
// re-running sessionization over the same window supersedes it.
type Session struct {
	SessionID string         `json:"session_id"`
	StartTS   time.Time      `json:"start_ts"`
	EndTS     time.Time      `json:"end_ts"`
	Duration  time.Duration  `json:"-"`
	Summary   SessionSummary `json:"summary"`
}

// RoutineCandidate is a mined recurring event-type sequence. The candidate
// set is replaced wholesale on each mining run.
type RoutineCandidate struct {
	PatternID          string    `json:"pattern_id"`
	Pattern            []string  `json:"pattern"`
	Support            int       `json:"support"`
	Confidence         float64   `json:"confidence"`
	LastSeenTS         time.Time `json:"last_seen_ts"`
	EvidenceSessionIDs []string  `json:"evidence_session_ids"`
}
