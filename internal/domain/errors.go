package domain

import "errors"

// Engine-wide error taxonomy. Callers classify failures with errors.Is
// and decide how to surface them; nothing in the engine is fatal at the
// process level.
var (
	// ErrValidation indicates malformed input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown product, renter, booking, or
	// regulation record.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a duplicate risk profile or a duplicate
	// active violation. Callers may treat it as idempotent success.
	ErrConflict = errors.New("conflict")

	// ErrDependency indicates an unavailable facts collaborator. Bulk
	// operations capture it per item so the batch completes.
	ErrDependency = errors.New("dependency unavailable")
)
