package domain

import "errors"

// Ledger error taxonomy. Callers match with errors.Is; the API layer maps
// each sentinel to an HTTP status. All of them are recoverable by the
// caller except ErrExerciseLocked, which is permanent for the record.
var (
	// ErrValidation covers malformed input: negative shares, duplicate
	// meter serials, missing divisional parents and the like.
	ErrValidation = errors.New("validation failed")

	// ErrCapacityExceeded is returned when a share write would push the
	// building's allocated shares past its total pool.
	ErrCapacityExceeded = errors.New("share pool capacity exceeded")

	// ErrExerciseLocked rejects any mutation inside a closed fiscal
	// exercise.
	ErrExerciseLocked = errors.New("fiscal exercise is closed")

	// ErrAlreadyExists is returned when an exercise for the same
	// building and year already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidConfirmation is returned when the closure confirmation
	// phrase does not match the expected one.
	ErrInvalidConfirmation = errors.New("confirmation phrase mismatch")

	// ErrNonMonotonicReading is returned when a meter index is lower
	// than the previously recorded one and the reading is not flagged
	// as a meter replacement.
	ErrNonMonotonicReading = errors.New("meter index lower than previous reading")

	// ErrBusy is returned when the per-building write lock cannot be
	// acquired within the bounded wait.
	ErrBusy = errors.New("building ledger is busy")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
)
