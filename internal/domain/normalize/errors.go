package normalize

import "errors"

// Sentinel kinds for normalization errors.
var (
	// ErrSchema marks a malformed or incomplete input record.
	ErrSchema = errors.New("schema error")

	// ErrUnknownMode marks an unrecognized validation mode string.
	ErrUnknownMode = errors.New("unknown validation mode")
)
