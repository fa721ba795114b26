package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Reservation is a committed claim of Quantity units against an InventoryUnit.
// It is created together with the capacity decrement and stays pending until a
// payment confirms it or a release (explicit or reaper-driven) cancels it.
type Reservation struct {
	ID             string
	RequesterID    string
	UnitID         string
	Quantity       int
	Status         ReservationStatus
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
