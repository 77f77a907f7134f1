package config

import "errors"

// Sentinel kinds for configuration validation errors.
var (
	ErrMissingAddr           = errors.New("addr must not be empty")
	ErrMissingDBPath         = errors.New("db_path must not be empty")
	ErrInvalidValidationMode = errors.New("validation_mode must be lenient or strict")
	ErrInvalidQueuePolicy    = errors.New("queue.policy must be reject-new or drop-oldest")
	ErrInvalidQueueSize      = errors.New("queue.size must be positive")
	ErrInvalidDropRatio      = errors.New("priority drop ratios must satisfy 0 <= p2 <= p1 <= 1")
	ErrInvalidNGramBounds    = errors.New("routine n-gram bounds must satisfy 1 <= n_min <= n_max")
)
