package domain

import "fmt"

// InsufficientDataError marks missing, stale, or uninterpretable inputs.
// Consumers must fail closed: treat the evaluation as the most conservative
// interpretable outcome, never as "no breach".
type InsufficientDataError struct {
	Source string
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data from %s: %s", e.Source, e.Reason)
}

// ConfigurationError marks a malformed constitution table at startup.
// It is fatal: the engine must refuse to start.
type ConfigurationError struct {
	Section string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Section, e.Reason)
}

// ContractViolationError marks an input-contract breach on a pure evaluator,
// such as a non-positive original credit handed to the roll cost validator.
type ContractViolationError struct {
	Field  string
	Reason string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("input contract violation on %s: %s", e.Field, e.Reason)
}
