package setup

import (
	"errors"
	"fmt"
)

// ErrMissingCode is returned when the code fetch leg resolves to no
// source text — spec.md §4.6 classifies this as an internal error
// (-32603), not a setup-specific code.
var ErrMissingCode = errors.New("setup: app code could not be resolved")

// MissingSecretsError carries the env_schema keys that are per-user
// scoped, required, and absent after the join — spec.md §4.6 maps
// this to JSON-RPC code -32006.
type MissingSecretsError struct {
	Missing []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("setup: missing required per-user secrets: %v", e.Missing)
}
