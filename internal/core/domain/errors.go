package domain

import "errors"

// Shared error taxonomy. Adapters translate storage and provider failures into
// these sentinels; the HTTP layer maps them to status codes.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidOutcome       = errors.New("invalid payment outcome")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrAlreadyReleased      = errors.New("reservation already released")
	ErrAlreadyFinalized     = errors.New("payment already finalized")
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrContention           = errors.New("optimistic lock contention")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrForbidden            = errors.New("forbidden")
)
