package extract

import (
	"fmt"
	"strings"
)

// ConfigError reports a request that cannot run, detected before any
// network activity.
type ConfigError struct {
	// Invalid lists unknown endpoint names, sorted.
	Invalid []string
	// Available lists the known endpoint names in catalog order.
	Available []string
	// Reason is set for problems other than unknown endpoints.
	Reason string
}

func (e *ConfigError) Error() string {
	if len(e.Invalid) == 0 {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid endpoints: %s. Available endpoints: %s",
		strings.Join(e.Invalid, ", "), strings.Join(e.Available, ", "))
}

// ScopeError reports that the account scope could not be resolved. It ends
// the whole run.
type ScopeError struct {
	Err error
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("could not resolve account scope: %v", e.Err)
}

func (e *ScopeError) Unwrap() error {
	return e.Err
}
