package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrRetryExhausted = errors.New("store retry attempts exhausted")
)
