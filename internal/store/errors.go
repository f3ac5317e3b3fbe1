package store

import "errors"

// Sentinel errors returned by the store. Callers wrap or inspect these with
// errors.Is to pick the right HTTP status; the wrapped message always carries
// the room/period/invoice-code context needed for a specific user message.
var (
	// ErrNotFound means the referenced room, student or invoice does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the write lost to concurrent or prior state: a stale
	// invoice transition, or re-recording a period whose invoice is already
	// in the payment flow.
	ErrConflict = errors.New("conflict")
	// ErrValidation means the input violates a billing precondition.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden means the acting role may not perform the transition.
	ErrForbidden = errors.New("forbidden")
)
