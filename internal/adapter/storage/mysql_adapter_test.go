package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nairobikonnect/konnect/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/konnect?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

func insertUnit(t *testing.T, adapter *MySQLAdapter, capacity int) domain.InventoryUnit {
	t.Helper()
	unit := domain.InventoryUnit{
		ID:                uuid.New().String(),
		Name:              "test-schedule",
		Kind:              domain.UnitKindSeats,
		Capacity:          capacity,
		CapacityRemaining: capacity,
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
		UpdatedAt:         time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, adapter.CreateUnit(context.Background(), unit))
	return unit
}

func newReservation(unitID string, quantity int, key string) domain.Reservation {
	return domain.Reservation{
		ID:             uuid.New().String(),
		RequesterID:    "test-user",
		UnitID:         unitID,
		Quantity:       quantity,
		Status:         domain.ReservationStatusPending,
		IdempotencyKey: key,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
		UpdatedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateReservation_DecrementsCapacity(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	unit := insertUnit(t, adapter, 10)

	r := newReservation(unit.ID, 3, "")
	require.NoError(t, adapter.CreateReservation(ctx, r))

	stored, err := adapter.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.CapacityRemaining)

	got, err := adapter.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusPending, got.Status)
}

func TestCreateReservation_Insufficient(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	unit := insertUnit(t, adapter, 2)

	err := adapter.CreateReservation(ctx, newReservation(unit.ID, 3, ""))
	assert.ErrorIs(t, err, domain.ErrInsufficientCapacity)

	// The rolled-back transaction must leave no reservation behind.
	stored, err := adapter.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CapacityRemaining)
}

func TestCreateReservation_UnknownUnit(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	err := adapter.CreateReservation(context.Background(), newReservation(uuid.New().String(), 1, ""))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateReservation_DuplicateIdempotencyKey(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	unit := insertUnit(t, adapter, 10)

	key := "itest-" + uuid.New().String()
	first := newReservation(unit.ID, 2, key)
	require.NoError(t, adapter.CreateReservation(ctx, first))

	err := adapter.CreateReservation(ctx, newReservation(unit.ID, 2, key))
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	prior, err := adapter.GetReservationByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, prior.ID)

	stored, err := adapter.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, stored.CapacityRemaining, "duplicate must not decrement twice")
}

func TestReleaseReservation(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	unit := insertUnit(t, adapter, 5)

	r := newReservation(unit.ID, 3, "")
	require.NoError(t, adapter.CreateReservation(ctx, r))

	require.NoError(t, adapter.ReleaseReservation(ctx, r.ID))

	stored, err := adapter.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.CapacityRemaining)

	assert.ErrorIs(t, adapter.ReleaseReservation(ctx, r.ID), domain.ErrAlreadyReleased)

	stored, err = adapter.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.CapacityRemaining, "capacity restored exactly once")
}

func TestUpdateUnit_OptimisticLock(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	unit := insertUnit(t, adapter, 100)

	fresh, err := adapter.GetUnit(ctx, unit.ID)
	require.NoError(t, err)

	fresh.Capacity = 120
	fresh.CapacityRemaining = 120
	require.NoError(t, adapter.UpdateUnit(ctx, *fresh))

	// Stale version loses.
	err = adapter.UpdateUnit(ctx, *fresh)
	assert.ErrorIs(t, err, domain.ErrContention)
}

func TestFinalizePayment_ConfirmsReservation(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	unit := insertUnit(t, adapter, 5)

	r := newReservation(unit.ID, 1, "")
	require.NoError(t, adapter.CreateReservation(ctx, r))

	p := domain.PaymentAttempt{
		TransactionID: "itest-" + uuid.New().String(),
		ReservationID: r.ID,
		Amount:        1500,
		Payer:         "254712345678",
		Status:        domain.PaymentStatusPending,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
		UpdatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, adapter.CreatePayment(ctx, p))

	require.NoError(t, adapter.FinalizePayment(ctx, p.TransactionID, domain.PaymentStatusCompleted))

	confirmed, err := adapter.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, confirmed.Status)

	err = adapter.FinalizePayment(ctx, p.TransactionID, domain.PaymentStatusCompleted)
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
}

func TestGetPayment_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	_, err := adapter.GetPayment(context.Background(), "no-such-txn")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListExpiredPending(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	unit := insertUnit(t, adapter, 10)

	stale := newReservation(unit.ID, 1, "")
	stale.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, adapter.CreateReservation(ctx, stale))

	fresh := newReservation(unit.ID, 1, "")
	require.NoError(t, adapter.CreateReservation(ctx, fresh))

	expired, err := adapter.ListExpiredPending(ctx, time.Now().UTC().Add(-30*time.Minute), 100)
	require.NoError(t, err)

	ids := make(map[string]bool, len(expired))
	for _, r := range expired {
		ids[r.ID] = true
	}
	assert.True(t, ids[stale.ID], "stale reservation should be listed")
	assert.False(t, ids[fresh.ID], "fresh reservation should not be listed")
}
