package model

import "errors"

// The error taxonomy shared by every layer.  Lower layers wrap one of these
// sentinels with context (fmt.Errorf("%w: ...", ErrX)) so that handlers can
// classify a failure with errors.Is and pick the matching HTTP status.
var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks an overlapping active booking or an unbookable resource.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks an absent booking, resource or account.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks an ownership or role violation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition marks an illegal booking or payment status move.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnavailable marks a failed collaborator (notifier, media store).
	ErrUnavailable = errors.New("collaborator unavailable")
	// ErrTimeout marks a reservation that could not enter its resource's
	// critical section in time.  Retrying is always safe.
	ErrTimeout = errors.New("reservation timed out")
)
