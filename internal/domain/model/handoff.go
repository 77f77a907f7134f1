package model

import "time"

// Handoff package lifecycle states.
const (
	HandoffPending  = "pending"
	HandoffConsumed = "consumed"
	HandoffExpired  = "expired"
)

// HandoffPackage is the bounded artifact handed to the downstream
// consumer. Status only moves forward: pending -> consumed | expired.
type HandoffPackage struct {
	PackageID string         `json:"package_id"`
	CreatedAt time.Time      `json:"created_at"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload"`
	SizeBytes int            `json:"size_bytes"`
	Truncated bool           `json:"truncated"`
}
