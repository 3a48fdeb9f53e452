package domain

import (
	"fmt"
	"strings"
)

// TransientError is a network or HTTP failure talking to the remote store.
// Local state is left as it was.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: remote returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ValidationError reports a malformed import document or telemetry payload.
type ValidationError struct {
	Field  string
	Reason string
	Issues []string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Issues) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Issues, "; "))
		b.WriteString("]")
	}
	return b.String()
}

// ConfigurationError is fatal to the session, e.g. a missing or unknown access key.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}
