package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nairobikonnect/konnect/internal/core/domain"
	"github.com/nairobikonnect/konnect/internal/metrics"
	"github.com/nairobikonnect/konnect/internal/port"
)

// maxCASAttempts bounds the read-check-write retry loop on capacity
// adjustments before surfacing domain.ErrContention.
const maxCASAttempts = 3

type ReservationService struct {
	db     port.DatabaseRepository
	cache  port.CacheRepository
	events *EventQueue
	log    *zap.Logger
}

func NewReservationService(db port.DatabaseRepository, cache port.CacheRepository, events *EventQueue, log *zap.Logger) *ReservationService {
	return &ReservationService{
		db:     db,
		cache:  cache,
		events: events,
		log:    log,
	}
}

// Reserve consumes quantity units of the inventory unit and commits a pending
// reservation as one atomic action. A repeated idempotency key returns the
// reservation the first request committed without decrementing again.
func (s *ReservationService) Reserve(ctx context.Context, requesterID, unitID string, quantity int, idempotencyKey string) (*domain.Reservation, error) {
	if quantity <= 0 {
		metrics.ReservationsTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidQuantity
	}

	r := domain.Reservation{
		ID:             uuid.New().String(),
		RequesterID:    requesterID,
		UnitID:         unitID,
		Quantity:       quantity,
		Status:         domain.ReservationStatusPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	claimed := false
	if idempotencyKey != "" {
		prior, err := s.cache.ClaimIdempotencyKey(ctx, idempotencyKey, r.ID)
		if err != nil {
			// Cache is a fast path only; the unique index on
			// idempotency_key remains the authoritative guard.
			s.log.Warn("idempotency cache unavailable", zap.Error(err))
		} else if prior != "" {
			if existing, err := s.db.GetReservation(ctx, prior); err == nil {
				metrics.ReservationsTotal.WithLabelValues("replay").Inc()
				return existing, nil
			}
			// Claimed but not committed: the earlier request died between
			// claim and insert. Fall through and let the database decide.
		} else {
			claimed = true
		}
	}

	if err := s.db.CreateReservation(ctx, r); err != nil {
		if claimed {
			if rbErr := s.cache.ReleaseIdempotencyKey(ctx, idempotencyKey); rbErr != nil {
				s.log.Warn("failed to roll back idempotency claim",
					zap.String("key", idempotencyKey), zap.Error(rbErr))
			}
		}
		if errors.Is(err, domain.ErrDuplicateRequest) && idempotencyKey != "" {
			if existing, lookupErr := s.db.GetReservationByIdempotencyKey(ctx, idempotencyKey); lookupErr == nil {
				metrics.ReservationsTotal.WithLabelValues("replay").Inc()
				return existing, nil
			}
		}
		switch {
		case errors.Is(err, domain.ErrNotFound):
			metrics.ReservationsTotal.WithLabelValues("not_found").Inc()
		case errors.Is(err, domain.ErrInsufficientCapacity):
			metrics.ReservationsTotal.WithLabelValues("sold_out").Inc()
		default:
			metrics.ReservationsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.ReservationsTotal.WithLabelValues("ok").Inc()
	s.refreshAvailability(ctx, unitID)
	s.events.Enqueue(domain.Event{
		Type:          domain.EventReservationCreated,
		ReservationID: r.ID,
		UnitID:        unitID,
		Quantity:      quantity,
	})

	return &r, nil
}

// Release cancels a reservation and restores the unit's remaining capacity
// exactly once. Safe to call concurrently with Reserve on the same unit.
func (s *ReservationService) Release(ctx context.Context, reservationID string) error {
	r, err := s.db.GetReservation(ctx, reservationID)
	if err != nil {
		metrics.ReleasesTotal.WithLabelValues("not_found").Inc()
		return err
	}

	if err := s.db.ReleaseReservation(ctx, reservationID); err != nil {
		if errors.Is(err, domain.ErrAlreadyReleased) {
			metrics.ReleasesTotal.WithLabelValues("already_released").Inc()
		} else {
			metrics.ReleasesTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	metrics.ReleasesTotal.WithLabelValues("ok").Inc()
	s.refreshAvailability(ctx, r.UnitID)
	s.events.Enqueue(domain.Event{
		Type:          domain.EventReservationReleased,
		ReservationID: r.ID,
		UnitID:        r.UnitID,
		Quantity:      r.Quantity,
	})

	return nil
}

func (s *ReservationService) Get(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return s.db.GetReservation(ctx, reservationID)
}

// CreateUnit provisions a new inventory pool.
func (s *ReservationService) CreateUnit(ctx context.Context, name string, kind domain.UnitKind, capacity int) (*domain.InventoryUnit, error) {
	if capacity < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	unit := domain.InventoryUnit{
		ID:                uuid.New().String(),
		Name:              name,
		Kind:              kind,
		Capacity:          capacity,
		CapacityRemaining: capacity,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}

	if err := s.db.CreateUnit(ctx, unit); err != nil {
		return nil, err
	}

	s.refreshAvailability(ctx, unit.ID)
	return &unit, nil
}

// GetUnit reads through the availability cache when it can; the database
// remains the source of truth for everything but CapacityRemaining hints.
func (s *ReservationService) GetUnit(ctx context.Context, unitID string) (*domain.InventoryUnit, error) {
	unit, err := s.db.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// Availability returns the remaining capacity, preferring the cache mirror.
func (s *ReservationService) Availability(ctx context.Context, unitID string) (int, error) {
	if remaining, ok, err := s.cache.GetAvailability(ctx, unitID); err == nil && ok {
		return remaining, nil
	}
	unit, err := s.db.GetUnit(ctx, unitID)
	if err != nil {
		return 0, err
	}
	s.refreshAvailability(ctx, unitID)
	return unit.CapacityRemaining, nil
}

// AdjustCapacity changes a unit's total capacity, keeping outstanding
// reservations intact. Uses a compare-and-swap on the version column with a
// bounded retry before surfacing contention.
func (s *ReservationService) AdjustCapacity(ctx context.Context, unitID string, newCapacity int) (*domain.InventoryUnit, error) {
	if newCapacity < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		unit, err := s.db.GetUnit(ctx, unitID)
		if err != nil {
			return nil, err
		}

		outstanding := unit.Capacity - unit.CapacityRemaining
		if newCapacity < outstanding {
			return nil, fmt.Errorf("%w: %d units already reserved", domain.ErrInvalidQuantity, outstanding)
		}

		unit.CapacityRemaining = newCapacity - outstanding
		unit.Capacity = newCapacity

		err = s.db.UpdateUnit(ctx, *unit)
		if err == nil {
			s.refreshAvailability(ctx, unitID)
			return unit, nil
		}
		if !errors.Is(err, domain.ErrContention) {
			return nil, err
		}
	}

	return nil, domain.ErrContention
}

func (s *ReservationService) refreshAvailability(ctx context.Context, unitID string) {
	unit, err := s.db.GetUnit(ctx, unitID)
	if err != nil {
		return
	}
	if err := s.cache.SetAvailability(ctx, unitID, unit.CapacityRemaining); err != nil {
		s.log.Warn("failed to refresh availability cache",
			zap.String("unit_id", unitID), zap.Error(err))
	}
}
