package repository

import "time"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithRetry sets the bounded retry policy for busy/locked writes.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Store) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

// WithBusyTimeout sets the SQLite busy_timeout pragma.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithWAL toggles WAL journal mode.
func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.walMode = enabled
	}
}
