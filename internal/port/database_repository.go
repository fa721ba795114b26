package port

import (
	"context"
	"time"

	"github.com/nairobikonnect/konnect/internal/core/domain"
)

type DatabaseRepository interface {
	// CreateUnit inserts a new inventory unit with its full capacity remaining.
	CreateUnit(ctx context.Context, unit domain.InventoryUnit) error

	// GetUnit retrieves an inventory unit by id.
	GetUnit(ctx context.Context, unitID string) (*domain.InventoryUnit, error)

	// UpdateUnit rewrites capacity fields with a version check for optimistic
	// locking; returns domain.ErrContention on a stale version.
	UpdateUnit(ctx context.Context, unit domain.InventoryUnit) error

	// CreateReservation persists a pending reservation and decrements the
	// unit's remaining capacity in a single transaction.
	CreateReservation(ctx context.Context, r domain.Reservation) error

	// GetReservation retrieves a reservation by id.
	GetReservation(ctx context.Context, reservationID string) (*domain.Reservation, error)

	// GetReservationByIdempotencyKey retrieves the reservation a prior request
	// with the same idempotency key committed.
	GetReservationByIdempotencyKey(ctx context.Context, key string) (*domain.Reservation, error)

	// ReleaseReservation flips the reservation to cancelled and restores the
	// unit's remaining capacity in a single transaction.
	ReleaseReservation(ctx context.Context, reservationID string) error

	// ListExpiredPending returns pending reservations created before cutoff,
	// oldest first, capped at limit.
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Reservation, error)

	// CreatePayment persists a new pending payment attempt.
	CreatePayment(ctx context.Context, p domain.PaymentAttempt) error

	// GetPayment retrieves a payment attempt by provider transaction id.
	GetPayment(ctx context.Context, transactionID string) (*domain.PaymentAttempt, error)

	// FinalizePayment moves a pending attempt to its final status and, on
	// completed, confirms the linked reservation in the same transaction.
	FinalizePayment(ctx context.Context, transactionID string, status domain.PaymentStatus) error
}
