package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/nairobikonnect/konnect/internal/core/domain"
)

const mysqlErrDuplicateEntry = 1062

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) CreateUnit(ctx context.Context, unit domain.InventoryUnit) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory_units (id, name, kind, capacity, capacity_remaining, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		unit.ID, unit.Name, unit.Kind, unit.Capacity, unit.CapacityRemaining,
		unit.CreatedAt, unit.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return domain.ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("insert unit: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetUnit(ctx context.Context, unitID string) (*domain.InventoryUnit, error) {
	var unit domain.InventoryUnit
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, kind, capacity, capacity_remaining, version, created_at, updated_at
		FROM inventory_units WHERE id = ?`, unitID,
	).Scan(&unit.ID, &unit.Name, &unit.Kind, &unit.Capacity, &unit.CapacityRemaining,
		&unit.Version, &unit.CreatedAt, &unit.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query unit: %w", err)
	}
	return &unit, nil
}

func (m *MySQLAdapter) UpdateUnit(ctx context.Context, unit domain.InventoryUnit) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory_units
		SET capacity = ?, capacity_remaining = ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND version = ?`,
		unit.Capacity, unit.CapacityRemaining, unit.ID, unit.Version,
	)
	if err != nil {
		return fmt.Errorf("update unit: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrContention
	}
	return nil
}

// CreateReservation inserts the pending reservation and decrements the unit's
// remaining capacity in one transaction. The guarded UPDATE keeps the counter
// non-negative under concurrent reserves.
func (m *MySQLAdapter) CreateReservation(ctx context.Context, r domain.Reservation) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (id, requester_id, unit_id, quantity, status, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequesterID, r.UnitID, r.Quantity, r.Status,
		nullableKey(r.IdempotencyKey), r.CreatedAt, r.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return domain.ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory_units
		SET capacity_remaining = capacity_remaining - ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND capacity_remaining >= ?`,
		r.Quantity, r.UnitID, r.Quantity,
	)
	if err != nil {
		return fmt.Errorf("decrement capacity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM inventory_units WHERE id = ?`, r.UnitID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check unit: %w", err)
		}
		return domain.ErrInsufficientCapacity
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetReservation(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return m.queryReservation(ctx, `WHERE id = ?`, reservationID)
}

func (m *MySQLAdapter) GetReservationByIdempotencyKey(ctx context.Context, key string) (*domain.Reservation, error) {
	return m.queryReservation(ctx, `WHERE idempotency_key = ?`, key)
}

func (m *MySQLAdapter) queryReservation(ctx context.Context, where string, arg any) (*domain.Reservation, error) {
	var r domain.Reservation
	var key sql.NullString
	err := m.db.QueryRowContext(ctx, `
		SELECT id, requester_id, unit_id, quantity, status, idempotency_key, created_at, updated_at
		FROM reservations `+where, arg,
	).Scan(&r.ID, &r.RequesterID, &r.UnitID, &r.Quantity, &r.Status, &key, &r.CreatedAt, &r.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query reservation: %w", err)
	}
	r.IdempotencyKey = key.String
	return &r, nil
}

// ReleaseReservation cancels the reservation and restores capacity in one
// transaction, using a row lock on the reservation to serialize releases.
func (m *MySQLAdapter) ReleaseReservation(ctx context.Context, reservationID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var unitID string
	var quantity int
	var status domain.ReservationStatus
	err = tx.QueryRowContext(ctx, `
		SELECT unit_id, quantity, status FROM reservations WHERE id = ? FOR UPDATE`,
		reservationID,
	).Scan(&unitID, &quantity, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock reservation: %w", err)
	}

	if status == domain.ReservationStatusCancelled {
		return domain.ErrAlreadyReleased
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE reservations SET status = ?, updated_at = NOW() WHERE id = ?`,
		domain.ReservationStatusCancelled, reservationID,
	); err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory_units
		SET capacity_remaining = capacity_remaining + ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND capacity_remaining + ? <= capacity`,
		quantity, unitID, quantity,
	)
	if err != nil {
		return fmt.Errorf("restore capacity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("restore capacity: unit %s would exceed capacity", unitID)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, requester_id, unit_id, quantity, status, idempotency_key, created_at, updated_at
		FROM reservations
		WHERE status = ? AND created_at < ?
		ORDER BY created_at
		LIMIT ?`,
		domain.ReservationStatusPending, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		var key sql.NullString
		if err := rows.Scan(&r.ID, &r.RequesterID, &r.UnitID, &r.Quantity, &r.Status,
			&key, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.IdempotencyKey = key.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) CreatePayment(ctx context.Context, p domain.PaymentAttempt) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO payments (transaction_id, reservation_id, amount, payer, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.TransactionID, nullableKey(p.ReservationID), p.Amount, p.Payer, p.Status,
		p.CreatedAt, p.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return domain.ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetPayment(ctx context.Context, transactionID string) (*domain.PaymentAttempt, error) {
	var p domain.PaymentAttempt
	var reservationID sql.NullString
	err := m.db.QueryRowContext(ctx, `
		SELECT transaction_id, reservation_id, amount, payer, status, created_at, updated_at
		FROM payments WHERE transaction_id = ?`, transactionID,
	).Scan(&p.TransactionID, &reservationID, &p.Amount, &p.Payer, &p.Status, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	p.ReservationID = reservationID.String
	return &p, nil
}

// FinalizePayment moves a pending attempt to its terminal status and, when the
// outcome is completed, confirms the linked reservation in the same
// transaction. The guarded updates make webhook replays harmless.
func (m *MySQLAdapter) FinalizePayment(ctx context.Context, transactionID string, status domain.PaymentStatus) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var reservationID sql.NullString
	var current domain.PaymentStatus
	err = tx.QueryRowContext(ctx, `
		SELECT reservation_id, status FROM payments WHERE transaction_id = ? FOR UPDATE`,
		transactionID,
	).Scan(&reservationID, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock payment: %w", err)
	}

	if current != domain.PaymentStatusPending {
		return domain.ErrAlreadyFinalized
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE payments SET status = ?, updated_at = NOW() WHERE transaction_id = ?`,
		status, transactionID,
	); err != nil {
		return fmt.Errorf("finalize payment: %w", err)
	}

	if status == domain.PaymentStatusCompleted && reservationID.Valid {
		// Confirms only a still-pending reservation: if the reaper cancelled
		// it meanwhile, the payment completes but the claim stays cancelled.
		if _, err := tx.ExecContext(ctx, `
			UPDATE reservations SET status = ?, updated_at = NOW()
			WHERE id = ? AND status = ?`,
			domain.ReservationStatusConfirmed, reservationID.String, domain.ReservationStatusPending,
		); err != nil {
			return fmt.Errorf("confirm reservation: %w", err)
		}
	}

	return tx.Commit()
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}

func nullableKey(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
