package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS inventory_units (
		id                 VARCHAR(64) PRIMARY KEY,
		name               VARCHAR(255) NOT NULL,
		kind               VARCHAR(16)  NOT NULL,
		capacity           INT          NOT NULL,
		capacity_remaining INT          NOT NULL,
		version            INT          NOT NULL DEFAULT 0,
		created_at         DATETIME     NOT NULL,
		updated_at         DATETIME     NOT NULL,
		CONSTRAINT chk_capacity_remaining CHECK (capacity_remaining >= 0 AND capacity_remaining <= capacity)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id              VARCHAR(64) PRIMARY KEY,
		requester_id    VARCHAR(64)  NOT NULL,
		unit_id         VARCHAR(64)  NOT NULL,
		quantity        INT          NOT NULL,
		status          VARCHAR(16)  NOT NULL,
		idempotency_key VARCHAR(128) NULL,
		created_at      DATETIME     NOT NULL,
		updated_at      DATETIME     NOT NULL,
		UNIQUE KEY ux_reservations_idempotency_key (idempotency_key),
		KEY ix_reservations_status_created (status, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		transaction_id VARCHAR(64) PRIMARY KEY,
		reservation_id VARCHAR(64) NULL,
		amount         BIGINT      NOT NULL,
		payer          VARCHAR(32) NOT NULL,
		status         VARCHAR(16) NOT NULL,
		created_at     DATETIME    NOT NULL,
		updated_at     DATETIME    NOT NULL,
		KEY ix_payments_reservation (reservation_id)
	)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
