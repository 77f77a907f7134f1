package sessionize

import "time"

// Option applies a configuration option to the Sessionizer.
type Option func(*Sessionizer)

// WithGap sets the idle gap that closes a session.
func WithGap(gap time.Duration) Option {
	return func(s *Sessionizer) {
		if gap > 0 {
			s.gap = gap
		}
	}
}

// WithMaxResources caps the resource list in a session summary.
func WithMaxResources(limit int) Option {
	return func(s *Sessionizer) {
		if limit > 0 {
			s.maxResources = limit
		}
	}
}
