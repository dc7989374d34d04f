package coverage

import "fmt"

// MergeConflictError reports two fragments that claim contradictory
// values for the same entity. Merging stops at the first conflict; the
// message names both observed values so the offending input pair can
// be found.
type MergeConflictError struct {
	// Entity is the kind of record in conflict, e.g. "line" or
	// "function".
	Entity string
	// Key identifies the record within its file.
	Key string
	// Property is the single-valued attribute that disagreed.
	Property string
	// ValueA and ValueB are the two irreconcilable observations.
	ValueA string
	ValueB string
	// Hint suggests a way out, when one exists.
	Hint string
}

func (e *MergeConflictError) Error() string {
	msg := fmt.Sprintf("conflicting %s for %s %s: %q vs %q", e.Property, e.Entity, e.Key, e.ValueA, e.ValueB)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}
