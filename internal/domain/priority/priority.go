// Package priority assigns processing tiers and collapses low-information
// event churn.
//
// Three behaviors are layered: a static event-type -> tier table, a
// debounce window that suppresses rapid repeat transitions of the same
// (event_type, app, resource), and focus-block aggregation that folds a
// run of foreground changes into one duration-bearing P1 event.
//
// A Processor is owned by the single pipeline worker; it is not safe for
// concurrent use.
package priority

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumora/collector/internal/domain/model"
)

// Built-in priority tables. Config may extend them but these always apply.
var (
	p0Types = tierSet(
		"outlook.send_clicked",
		"excel.export_pdf",
		"excel.export_csv",
		"excel.save_as",
		"os.file_saved",
		"excel.refresh_pivot",
		"upload_done",
		"share_link_created",
	)
	p1Types = tierSet(
		"os.app_focus_block",
		"os.file_opened",
		"excel.workbook_opened",
		"outlook.compose_started",
		"outlook.attachment_added_meta",
	)
	p2Types = tierSet(
		"os.foreground_changed",
		"os.window_title_changed",
		"os.clipboard_meta",
	)

	debounceTypes = tierSet(
		"os.foreground_changed",
		"os.window_title_changed",
	)

	idleTypes = tierSet("os.idle_start", "os.idle_end")
)

// Recorder is the slice of the metrics manager the processor reports into.
type Recorder interface {
	RecordDrop(reason string)
}

type debounceKey struct {
	eventType string
	app       string
	resource  string
}

// focusState pairs the open focus block with the envelope that opened
// it; the envelope supplies the metadata carried onto the closed block.
type focusState struct {
	envelope model.EventEnvelope
	block    model.FocusBlock
}

// Processor classifies, debounces, and aggregates envelopes.
type Processor struct {
	debounce       time.Duration
	maxOpenFocus   time.Duration
	focusTypes     map[string]bool
	focusBlockType string
	dropP2Ratio    float64
	dropP1Ratio    float64
	p0, p1, p2     map[string]bool
	metrics        Recorder

	lastSeen map[debounceKey]time.Time
	focus    *focusState
}

// New creates a Processor with defaults matching the shipped sensors.
func New(opts ...Option) *Processor {
	p := &Processor{
		debounce:       2 * time.Second,
		maxOpenFocus:   time.Hour,
		focusTypes:     tierSet("os.foreground_changed"),
		focusBlockType: "os.app_focus_block",
		dropP2Ratio:    0.8,
		dropP1Ratio:    0.95,
		p0:             cloneSet(p0Types),
		p1:             cloneSet(p1Types),
		p2:             cloneSet(p2Types),
		lastSeen:       make(map[debounceKey]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process classifies one envelope and returns the envelopes to persist:
// possibly a closed focus block, possibly the input itself, possibly
// nothing (debounced or shed). queueRatio is the current queue fill level
// used for pressure shedding.
func (p *Processor) Process(envelope model.EventEnvelope, queueRatio float64) []model.EventEnvelope {
	eventType := strings.ToLower(envelope.EventType)
	envelope.Priority = p.Classify(eventType, envelope.Priority)

	// Pressure shedding: P2 first, then P1 at a higher threshold. P0 is
	// never shed.
	if envelope.Priority == model.P2 && queueRatio >= p.dropP2Ratio ||
		envelope.Priority == model.P1 && queueRatio >= p.dropP1Ratio {
		p.drop("queue_overflow")
		return nil
	}

	var out []model.EventEnvelope

	// A focus block that has been open past the cap closes regardless of
	// what arrives next.
	if p.focus != nil && p.maxOpenFocus > 0 && envelope.TS.Sub(p.focus.block.StartTS) >= p.maxOpenFocus {
		out = append(out, p.closeFocus(p.focus.block.StartTS.Add(p.maxOpenFocus))...)
	}

	switch {
	case p.focusTypes[eventType]:
		out = append(out, p.closeFocus(envelope.TS)...)
		p.focus = &focusState{
			envelope: envelope,
			block: model.FocusBlock{
				App:        envelope.App,
				ResourceID: envelope.Resource.ID,
				StartTS:    envelope.TS,
			},
		}
		return out
	case idleTypes[eventType]:
		out = append(out, p.closeFocus(envelope.TS)...)
	case debounceTypes[eventType]:
		if p.shouldDebounce(envelope, eventType) {
			p.drop("debounce")
			return out
		}
	}

	return append(out, envelope)
}

// Flush force-closes the open focus block, if any. Called on shutdown so
// in-flight blocks are persisted rather than discarded.
func (p *Processor) Flush(now time.Time) []model.EventEnvelope {
	return p.closeFocus(now)
}

// Classify maps an event type to its tier. Unknown types keep a valid
// supplied tier or default to P1.
func (p *Processor) Classify(eventType string, current model.Priority) model.Priority {
	switch {
	case p.p0[eventType]:
		return model.P0
	case p.p1[eventType]:
		return model.P1
	case p.p2[eventType]:
		return model.P2
	case current.Valid():
		return current
	default:
		return model.P1
	}
}

func (p *Processor) shouldDebounce(envelope model.EventEnvelope, eventType string) bool {
	key := debounceKey{eventType: eventType, app: envelope.App, resource: envelope.Resource.ID}
	last, seen := p.lastSeen[key]
	p.lastSeen[key] = envelope.TS
	return seen && envelope.TS.Sub(last) < p.debounce
}

// closeFocus converts the open focus state into one focus-block event
// ending at closeTS. Blocks shorter than the debounce window are noise
// and are discarded.
func (p *Processor) closeFocus(closeTS time.Time) []model.EventEnvelope {
	if p.focus == nil {
		return nil
	}
	prev := p.focus
	p.focus = nil

	prev.block.EndTS = closeTS
	duration := closeTS.Sub(prev.block.StartTS)
	if duration < p.debounce {
		return nil
	}
	prev.block.Duration = int(duration.Seconds())

	payload := make(map[string]any, len(prev.envelope.Payload)+1)
	for k, v := range prev.envelope.Payload {
		payload[k] = v
	}
	payload["duration_sec"] = prev.block.Duration

	block := model.EventEnvelope{
		SchemaVersion: prev.envelope.SchemaVersion,
		EventID:       uuid.NewString(),
		TS:            prev.block.StartTS,
		Source:        prev.envelope.Source,
		App:           prev.envelope.App,
		EventType:     p.focusBlockType,
		Priority:      p.Classify(p.focusBlockType, model.P1),
		Resource:      prev.envelope.Resource,
		Payload:       payload,
		Privacy: model.PrivacyMeta{
			PIILevel:  prev.envelope.Privacy.PIILevel,
			Redaction: append([]string(nil), prev.envelope.Privacy.Redaction...),
		},
		PID:      prev.envelope.PID,
		WindowID: prev.envelope.WindowID,
		Raw:      prev.envelope.Raw,
	}
	return []model.EventEnvelope{block}
}

func (p *Processor) drop(reason string) {
	if p.metrics != nil {
		p.metrics.RecordDrop(reason)
	}
}

func tierSet(types ...string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToLower(t)] = true
	}
	return set
}

func cloneSet(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
