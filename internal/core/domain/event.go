package domain

import "time"

type EventType string

const (
	EventReservationCreated  EventType = "reservation.created"
	EventReservationReleased EventType = "reservation.released"
	EventPaymentCompleted    EventType = "payment.completed"
	EventPaymentFailed       EventType = "payment.failed"
)

// Event is a lifecycle notification fanned out to the message broker after the
// state change has been committed. Delivery is best effort and never blocks
// the request path.
type Event struct {
	ID            string
	Type          EventType
	OccurredAt    time.Time
	ReservationID string
	UnitID        string
	TransactionID string
	Quantity      int
}
