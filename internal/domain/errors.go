package domain

import "fmt"

// ConfigurationError reports invalid rule-authoring input: an unresolvable
// predicate field reference, an uncompilable expression, a malformed tree.
// Caught at save/validate time and surfaced to the configuring user; a rule
// that fails configuration never reaches resolution.
type ConfigurationError struct {
	RuleID string
	Detail string
}

func (e *ConfigurationError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("configuration error in rule %s: %s", e.RuleID, e.Detail)
	}
	return "configuration error: " + e.Detail
}

// InvalidStateError reports an illegal lifecycle transition. The caller must
// not retry without changing state.
type InvalidStateError struct {
	RuleSetID string
	From      ReviewStatus
	To        ReviewStatus
	Detail    string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("invalid transition %s -> %s for rule set %s", e.From, e.To, e.RuleSetID)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// OutOfRangeError reports a premium lookup outside the populated grid.
// Extrapolated premiums are a pricing risk; the lookup hard-fails instead.
type OutOfRangeError struct {
	Axis  string // "age" or "faceAmount"
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %v outside populated grid [%v, %v]", e.Axis, e.Value, e.Min, e.Max)
}

// ValidationError reports malformed configuration data, e.g. a non-positive
// premium in an upsert batch. The whole batch is rejected; nothing is
// partially written.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Detail
}
