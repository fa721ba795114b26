package domain

import "time"

type UnitKind string

const (
	UnitKindSeats UnitKind = "seats"
	UnitKindStock UnitKind = "stock"
)

// InventoryUnit is a countable resource pool: a bus schedule's seat pool or a
// product's stock pool. CapacityRemaining stays within [0, Capacity].
type InventoryUnit struct {
	ID                string
	Name              string
	Kind              UnitKind
	Capacity          int
	CapacityRemaining int
	Version           int // optimistic locking
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
