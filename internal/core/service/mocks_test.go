package service

import (
	"context"
	"sync"
	"time"

	"github.com/nairobikonnect/konnect/internal/core/domain"
	"github.com/nairobikonnect/konnect/internal/port"
)

// memoryRepo is an in-memory DatabaseRepository honoring the same contracts
// as the MySQL adapter, including atomicity of reserve/release under a lock.
type memoryRepo struct {
	mu           sync.Mutex
	units        map[string]*domain.InventoryUnit
	reservations map[string]*domain.Reservation
	payments     map[string]*domain.PaymentAttempt
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		units:        make(map[string]*domain.InventoryUnit),
		reservations: make(map[string]*domain.Reservation),
		payments:     make(map[string]*domain.PaymentAttempt),
	}
}

func (m *memoryRepo) CreateUnit(ctx context.Context, unit domain.InventoryUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.units[unit.ID]; ok {
		return domain.ErrDuplicateRequest
	}
	m.units[unit.ID] = &unit
	return nil
}

func (m *memoryRepo) GetUnit(ctx context.Context, unitID string) (*domain.InventoryUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, ok := m.units[unitID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *unit
	return &cp, nil
}

func (m *memoryRepo) UpdateUnit(ctx context.Context, unit domain.InventoryUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.units[unit.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != unit.Version {
		return domain.ErrContention
	}
	unit.Version++
	m.units[unit.ID] = &unit
	return nil
}

func (m *memoryRepo) CreateReservation(ctx context.Context, r domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.IdempotencyKey != "" {
		for _, existing := range m.reservations {
			if existing.IdempotencyKey == r.IdempotencyKey {
				return domain.ErrDuplicateRequest
			}
		}
	}

	unit, ok := m.units[r.UnitID]
	if !ok {
		return domain.ErrNotFound
	}
	if unit.CapacityRemaining < r.Quantity {
		return domain.ErrInsufficientCapacity
	}

	unit.CapacityRemaining -= r.Quantity
	unit.Version++
	m.reservations[r.ID] = &r
	return nil
}

func (m *memoryRepo) GetReservation(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[reservationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRepo) GetReservationByIdempotencyKey(ctx context.Context, key string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.IdempotencyKey == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memoryRepo) ReleaseReservation(ctx context.Context, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[reservationID]
	if !ok {
		return domain.ErrNotFound
	}
	if r.Status == domain.ReservationStatusCancelled {
		return domain.ErrAlreadyReleased
	}

	unit, ok := m.units[r.UnitID]
	if ok {
		unit.CapacityRemaining += r.Quantity
		unit.Version++
	}
	r.Status = domain.ReservationStatusCancelled
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryRepo) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Reservation
	for _, r := range m.reservations {
		if r.Status == domain.ReservationStatusPending && r.CreatedAt.Before(cutoff) {
			out = append(out, *r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memoryRepo) CreatePayment(ctx context.Context, p domain.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.TransactionID]; ok {
		return domain.ErrDuplicateRequest
	}
	m.payments[p.TransactionID] = &p
	return nil
}

func (m *memoryRepo) GetPayment(ctx context.Context, transactionID string) (*domain.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[transactionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryRepo) FinalizePayment(ctx context.Context, transactionID string, status domain.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[transactionID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != domain.PaymentStatusPending {
		return domain.ErrAlreadyFinalized
	}

	p.Status = status
	p.UpdatedAt = time.Now().UTC()

	if status == domain.PaymentStatusCompleted && p.ReservationID != "" {
		if r, ok := m.reservations[p.ReservationID]; ok && r.Status == domain.ReservationStatusPending {
			r.Status = domain.ReservationStatusConfirmed
		}
	}
	return nil
}

// memoryCache is an in-memory CacheRepository.
type memoryCache struct {
	mu    sync.Mutex
	idem  map[string]string
	avail map[string]int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		idem:  make(map[string]string),
		avail: make(map[string]int),
	}
}

func (c *memoryCache) ClaimIdempotencyKey(ctx context.Context, key, reservationID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prior, ok := c.idem[key]; ok {
		return prior, nil
	}
	c.idem[key] = reservationID
	return "", nil
}

func (c *memoryCache) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.idem, key)
	return nil
}

func (c *memoryCache) SetAvailability(ctx context.Context, unitID string, remaining int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.avail[unitID] = remaining
	return nil
}

func (c *memoryCache) GetAvailability(ctx context.Context, unitID string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining, ok := c.avail[unitID]
	return remaining, ok, nil
}

// mockProvider records push requests and answers with scripted results.
type mockProvider struct {
	mu     sync.Mutex
	calls  int
	nextID string
	err    error
}

func (p *mockProvider) RequestPush(ctx context.Context, req port.PushRequest) (*port.PushResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &port.PushResult{TransactionID: p.nextID}, nil
}
