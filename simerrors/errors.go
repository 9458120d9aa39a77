// Package simerrors defines the error taxonomy shared by every
// queuesim component: configuration mistakes the caller can fix,
// invariant violations that indicate an engine bug, and numeric-domain
// failures in the RNG/distribution layer.
package simerrors

import "fmt"

// ConfigurationError reports a problem discovered while validating a
// simconfig.Config, before any event has been scheduled.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError constructs a ConfigurationError.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// InvariantViolation is fatal and indicates a bug in the engine: an
// event popped targeting an unknown server/customer, or server state
// that contradicts the state-machine invariants in spec §3.
type InvariantViolation struct {
	Where  string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Where, e.Detail)
}

// NewInvariantViolation constructs an InvariantViolation.
func NewInvariantViolation(where, detail string) *InvariantViolation {
	return &InvariantViolation{Where: where, Detail: detail}
}

// NumericDomainError is fatal and reports an out-of-domain numeric
// result, such as the RNG producing exactly 1.0 where a log operation
// requires input strictly less than 1.
type NumericDomainError struct {
	Op     string
	Detail string
}

func (e *NumericDomainError) Error() string {
	return fmt.Sprintf("numeric domain error in %s: %s", e.Op, e.Detail)
}

// NewNumericDomainError constructs a NumericDomainError.
func NewNumericDomainError(op, detail string) *NumericDomainError {
	return &NumericDomainError{Op: op, Detail: detail}
}
