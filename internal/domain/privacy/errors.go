package privacy

import "errors"

// ErrInvalidRules marks a rules file that fails to compile.
var ErrInvalidRules = errors.New("invalid privacy rules")
