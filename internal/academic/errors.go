package academic

import (
	"errors"
	"fmt"
)

// ErrConflict marks an immutable-field mismatch between a candidate and the
// persisted entity. Conflicts are hard data inconsistencies and are never
// retried.
var ErrConflict = errors.New("reconciliation conflict")

// ErrContract marks a programmer-contract violation, such as a shift-instance
// batch spanning multiple shifts. Treated as a defect, never retried.
var ErrContract = errors.New("contract violation")

// ErrNoData signals that the remote source has nothing for this unit, e.g.
// an access-restricted roster. The unit completes with zero candidates.
var ErrNoData = errors.New("no data available")

// ConflictError carries enough context to diagnose an immutable-field
// mismatch: the entity kind, its natural key, and both values.
type ConflictError struct {
	Entity string
	Key    string
	Field  string
	Old    string
	New    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s changed from %q to %q", e.Entity, e.Key, e.Field, e.Old, e.New)
}

// Unwrap lets errors.Is match ErrConflict.
func (e *ConflictError) Unwrap() error { return ErrConflict }
