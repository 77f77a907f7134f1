// Package normalize validates and defaults raw sensor records into the
// canonical event envelope.
//
// Two modes exist: lenient (missing optional fields are defaulted) and
// strict (incomplete records are rejected). Version handling follows the
// forward-ignore rule: fields from a newer schema version are preserved in
// the raw copy but ignored by downstream logic, while records from an
// older version get absent fields defaulted even in strict mode.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumora/collector/internal/domain/model"
)

// Supported schema version range.
var (
	supportedMin = version{1, 0}
	supportedMax = version{1, 0}
)

// Mode selects validation behavior.
type Mode string

const (
	Lenient Mode = "lenient"
	Strict  Mode = "strict"
)

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

type version struct {
	major int
	minor int
}

func (v version) less(o version) bool {
	if v.major != o.major {
		return v.major < o.major
	}
	return v.minor < o.minor
}

// Normalizer turns loosely typed records into envelopes.
type Normalizer struct {
	mode Mode
	now  func() time.Time
}

// New creates a Normalizer for the given mode.
func New(mode Mode, opts ...Option) *Normalizer {
	n := &Normalizer{mode: mode, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithClock overrides the wall clock, used by tests for deterministic
// defaulted timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// Normalize produces an EventEnvelope from a raw record or fails with a
// SchemaError-wrapped reason.
func (n *Normalizer) Normalize(raw map[string]any) (model.EventEnvelope, error) {
	if raw == nil {
		return model.EventEnvelope{}, fmt.Errorf("%w: event must be an object", ErrSchema)
	}

	schemaVersion := stringOr(raw["schema_version"], model.DefaultSchemaVersion)
	ver, ok := parseVersion(schemaVersion)
	if !ok {
		if n.mode == Strict {
			return model.EventEnvelope{}, fmt.Errorf("%w: invalid schema_version %q", ErrSchema, schemaVersion)
		}
		schemaVersion = model.DefaultSchemaVersion
		ver, _ = parseVersion(schemaVersion)
	}

	compatBack := ver.less(supportedMin)
	compatForward := supportedMax.less(ver)
	allowMissing := n.mode == Lenient || compatBack

	eventID, err := n.eventID(raw["event_id"], allowMissing)
	if err != nil {
		return model.EventEnvelope{}, err
	}
	ts, err := n.timestamp(raw["ts"], allowMissing)
	if err != nil {
		return model.EventEnvelope{}, err
	}
	source, err := requiredString(raw["source"], "source", allowMissing)
	if err != nil {
		return model.EventEnvelope{}, err
	}
	app, err := requiredString(raw["app"], "app", allowMissing)
	if err != nil {
		return model.EventEnvelope{}, err
	}
	eventType, err := requiredString(raw["event_type"], "event_type", allowMissing)
	if err != nil {
		return model.EventEnvelope{}, err
	}
	priority, err := priorityOf(raw["priority"], allowMissing)
	if err != nil {
		return model.EventEnvelope{}, err
	}
	resource, err := resourceOf(raw["resource"], allowMissing)
	if err != nil {
		return model.EventEnvelope{}, err
	}
	payload, err := payloadOf(raw["payload"], allowMissing)
	if err != nil {
		return model.EventEnvelope{}, err
	}
	privacy, err := privacyOf(raw["privacy"], allowMissing)
	if err != nil {
		return model.EventEnvelope{}, err
	}

	if compatForward && n.mode == Strict {
		if err := ensureRequiredPresent(raw); err != nil {
			return model.EventEnvelope{}, err
		}
	}

	return model.EventEnvelope{
		SchemaVersion: schemaVersion,
		EventID:       eventID,
		TS:            ts,
		Source:        source,
		App:           app,
		EventType:     eventType,
		Priority:      priority,
		Resource:      resource,
		Payload:       payload,
		Privacy:       privacy,
		PID:           pidOf(raw["pid"]),
		WindowID:      windowIDOf(raw["window_id"]),
		Raw:           raw,
	}, nil
}

func (n *Normalizer) eventID(value any, allowMissing bool) (string, error) {
	s := stringOr(value, "")
	if s == "" {
		if allowMissing {
			return uuid.NewString(), nil
		}
		return "", fmt.Errorf("%w: missing event_id", ErrSchema)
	}
	if n.mode == Strict {
		if _, err := uuid.Parse(s); err != nil {
			return "", fmt.Errorf("%w: invalid event_id", ErrSchema)
		}
	}
	return s, nil
}

func (n *Normalizer) timestamp(value any, allowMissing bool) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		if allowMissing {
			return n.now(), nil
		}
		return time.Time{}, fmt.Errorf("%w: missing ts", ErrSchema)
	case string:
		if v == "" {
			if allowMissing {
				return n.now(), nil
			}
			return time.Time{}, fmt.Errorf("%w: missing ts", ErrSchema)
		}
		if ts, ok := ParseTS(v); ok {
			return ts, nil
		}
		if n.mode == Strict {
			return time.Time{}, fmt.Errorf("%w: invalid ts %q", ErrSchema, v)
		}
		return n.now(), nil
	case float64:
		return time.Unix(int64(v), int64((v-float64(int64(v)))*1e9)).UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	default:
		if n.mode == Strict {
			return time.Time{}, fmt.Errorf("%w: invalid ts", ErrSchema)
		}
		return n.now(), nil
	}
}

// ParseTS parses an RFC3339 timestamp, normalizing to UTC.
func ParseTS(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func requiredString(value any, name string, allowMissing bool) (string, error) {
	s := stringOr(value, "")
	if s == "" {
		if allowMissing {
			return "unknown", nil
		}
		return "", fmt.Errorf("%w: missing %s", ErrSchema, name)
	}
	return s, nil
}

func priorityOf(value any, allowMissing bool) (model.Priority, error) {
	s := stringOr(value, "")
	if s == "" {
		if allowMissing {
			return model.P1, nil
		}
		return "", fmt.Errorf("%w: missing priority", ErrSchema)
	}
	p := model.Priority(strings.ToUpper(s))
	if p.Valid() {
		return p, nil
	}
	if allowMissing {
		return model.P1, nil
	}
	return "", fmt.Errorf("%w: invalid priority %q", ErrSchema, s)
}

func resourceOf(value any, allowMissing bool) (model.ResourceRef, error) {
	m, ok := value.(map[string]any)
	if !ok {
		if allowMissing {
			return model.ResourceRef{Type: "unknown", ID: "unknown"}, nil
		}
		return model.ResourceRef{}, fmt.Errorf("%w: missing resource", ErrSchema)
	}
	rType := stringOr(m["type"], "")
	rID := stringOr(m["id"], "")
	if rType == "" || rID == "" {
		if allowMissing {
			return model.ResourceRef{Type: "unknown", ID: "unknown"}, nil
		}
		return model.ResourceRef{}, fmt.Errorf("%w: invalid resource", ErrSchema)
	}
	return model.ResourceRef{Type: rType, ID: rID}, nil
}

func payloadOf(value any, allowMissing bool) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		if allowMissing {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("%w: missing payload", ErrSchema)
	case map[string]any:
		return v, nil
	default:
		if !allowMissing {
			return nil, fmt.Errorf("%w: payload must be an object", ErrSchema)
		}
		return map[string]any{}, nil
	}
}

func privacyOf(value any, allowMissing bool) (model.PrivacyMeta, error) {
	m, ok := value.(map[string]any)
	if !ok {
		if allowMissing {
			return model.PrivacyMeta{PIILevel: "unknown", Redaction: []string{}}, nil
		}
		return model.PrivacyMeta{}, fmt.Errorf("%w: missing privacy", ErrSchema)
	}
	piiLevel := stringOr(m["pii_level"], "")
	if piiLevel == "" {
		if !allowMissing {
			return model.PrivacyMeta{}, fmt.Errorf("%w: missing privacy.pii_level", ErrSchema)
		}
		piiLevel = "unknown"
	}
	redaction := []string{}
	switch r := m["redaction"].(type) {
	case nil:
	case []any:
		for _, item := range r {
			redaction = append(redaction, stringOr(item, ""))
		}
	default:
		if !allowMissing {
			return model.PrivacyMeta{}, fmt.Errorf("%w: invalid privacy.redaction", ErrSchema)
		}
	}
	return model.PrivacyMeta{PIILevel: piiLevel, Redaction: redaction}, nil
}

func pidOf(value any) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func windowIDOf(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.Itoa(int(v))
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

func ensureRequiredPresent(raw map[string]any) error {
	required := []string{
		"schema_version", "event_id", "ts", "source", "app",
		"event_type", "priority", "resource", "payload", "privacy",
	}
	var missing []string
	for _, key := range required {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrSchema, strings.Join(missing, ", "))
	}
	return nil
}

func parseVersion(value string) (version, bool) {
	major, minor, found := strings.Cut(value, ".")
	if !found {
		return version{}, false
	}
	maj, err := strconv.Atoi(major)
	if err != nil {
		return version{}, false
	}
	min, err := strconv.Atoi(minor)
	if err != nil {
		return version{}, false
	}
	return version{maj, min}, true
}

func stringOr(value any, fallback string) string {
	switch v := value.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return fallback
}
