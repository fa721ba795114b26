package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// PaymentAttempt records one STK push request/response cycle with the payment
// provider, keyed by the provider-assigned transaction id. At most one attempt
// moves a given Reservation from pending to confirmed.
type PaymentAttempt struct {
	TransactionID string
	ReservationID string // empty when the payment is not tied to a reservation
	Amount        int64  // minor units (cents)
	Payer         string
	Status        PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
