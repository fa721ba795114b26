package port

import "context"

type CacheRepository interface {
	// ClaimIdempotencyKey atomically maps a client idempotency key to a
	// reservation id. Returns the previously claimed id when the key was
	// already taken, or "" when this call won the claim.
	ClaimIdempotencyKey(ctx context.Context, key, reservationID string) (string, error)

	// ReleaseIdempotencyKey drops a claim (rollback when the reservation
	// could not be committed).
	ReleaseIdempotencyKey(ctx context.Context, key string) error

	// SetAvailability mirrors a unit's remaining capacity for cheap reads.
	SetAvailability(ctx context.Context, unitID string, remaining int) error

	// GetAvailability returns the mirrored remaining capacity; ok is false on
	// a cache miss.
	GetAvailability(ctx context.Context, unitID string) (remaining int, ok bool, err error)
}
