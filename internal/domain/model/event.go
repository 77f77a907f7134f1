// Package model contains domain models passed between layers.
package model

import "time"

// DefaultSchemaVersion is stamped on envelopes that arrive without one.
const DefaultSchemaVersion = "1.0"

// Priority is the processing tier assigned to an event by the classifier.
type Priority string

// Priority tiers. P0 events are completion/decision signals and must never
// be dropped; P2 events are high-frequency noise and are shed first under
// queue pressure.
const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
)

// Valid reports whether p is one of the known tiers.
func (p Priority) Valid() bool {
	return p == P0 || p == P1 || p == P2
}

// ResourceRef identifies the resource an event touched. ID is a stable
// HMAC of the original identifier once the privacy guard has run.
type ResourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// PrivacyMeta records which redaction rules fired for an envelope.
type PrivacyMeta struct {
	PIILevel  string   `json:"pii_level"`
	Redaction []string `json:"redaction"`
}

// EventEnvelope is the canonical unit flowing through the pipeline.
// Envelopes are immutable once stored; EventID is globally unique.
type EventEnvelope struct {
	SchemaVersion string         `json:"schema_version"`
	EventID       string         `json:"event_id"`
	TS            time.Time      `json:"ts"`
	Source        string         `json:"source"`
	App           string         `json:"app"`
	EventType     string         `json:"event_type"`
	Priority      Priority       `json:"priority"`
	Resource      ResourceRef    `json:"resource"`
	Payload       map[string]any `json:"payload"`
	Privacy       PrivacyMeta    `json:"privacy"`
	PID           int            `json:"pid,omitempty"`
	WindowID      string         `json:"window_id,omitempty"`

	// Raw carries the pre-redaction input through the pipeline. It is
	// kept out of the wire format; the ledger stores it in a separate
	// audit-only column.
	Raw map[string]any `json:"-"`
}

// FocusBlock is the aggregate of contiguous activity on one resource,
// replacing a run of raw transition events with a single duration-bearing
// record. It is mutable only while open.
type FocusBlock struct {
	App        string    `json:"app"`
	ResourceID string    `json:"resource_id"`
	StartTS    time.Time `json:"start_ts"`
	EndTS      time.Time `json:"end_ts"`
	Duration   int       `json:"duration_sec"`
}
