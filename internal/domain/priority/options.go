package priority

import (
	"strings"
	"time"
)

// Option applies a configuration option to the Processor.
type Option func(*Processor)

// WithDebounceWindow sets the coalescing window for repeat transitions.
func WithDebounceWindow(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.debounce = d
		}
	}
}

// WithMaxOpenFocus caps how long a focus block may stay open.
func WithMaxOpenFocus(d time.Duration) Option {
	return func(p *Processor) {
		p.maxOpenFocus = d
	}
}

// WithFocusEventTypes sets the event types that open focus blocks.
func WithFocusEventTypes(types []string) Option {
	return func(p *Processor) {
		if len(types) > 0 {
			p.focusTypes = tierSet(types...)
		}
	}
}

// WithFocusBlockEventType sets the emitted aggregate's event type.
func WithFocusBlockEventType(eventType string) Option {
	return func(p *Processor) {
		if eventType != "" {
			p.focusBlockType = strings.ToLower(eventType)
		}
	}
}

// WithDropRatios sets the queue-fill thresholds for shedding P2 and P1.
func WithDropRatios(p2Ratio, p1Ratio float64) Option {
	return func(p *Processor) {
		if p2Ratio > 0 {
			p.dropP2Ratio = p2Ratio
		}
		if p1Ratio >= p2Ratio && p1Ratio > 0 {
			p.dropP1Ratio = p1Ratio
		}
	}
}

// WithExtraTiers merges configured event types into the built-in tables.
func WithExtraTiers(extraP0, extraP1, extraP2 []string) Option {
	return func(p *Processor) {
		for _, t := range extraP0 {
			p.p0[strings.ToLower(t)] = true
		}
		for _, t := range extraP1 {
			p.p1[strings.ToLower(t)] = true
		}
		for _, t := range extraP2 {
			p.p2[strings.ToLower(t)] = true
		}
	}
}

// WithRecorder sets the drop metrics sink.
func WithRecorder(r Recorder) Option {
	return func(p *Processor) {
		p.metrics = r
	}
}
