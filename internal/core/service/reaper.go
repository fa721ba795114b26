package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nairobikonnect/konnect/internal/core/domain"
	"github.com/nairobikonnect/konnect/internal/metrics"
)

// Reaper auto-releases pending reservations that were never confirmed within
// the expiry window, returning their capacity to the pool.
type Reaper struct {
	reservations *ReservationService
	interval     time.Duration
	window       time.Duration
	batchSize    int
	log          *zap.Logger
}

func NewReaper(reservations *ReservationService, interval, window time.Duration, batchSize int, log *zap.Logger) *Reaper {
	return &Reaper{
		reservations: reservations,
		interval:     interval,
		window:       window,
		batchSize:    batchSize,
		log:          log,
	}
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep releases one batch of expired pending reservations.
func (r *Reaper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.window)

	expired, err := r.reservations.db.ListExpiredPending(ctx, cutoff, r.batchSize)
	if err != nil {
		r.log.Warn("reaper list failed", zap.Error(err))
		return
	}

	for _, res := range expired {
		err := r.reservations.Release(ctx, res.ID)
		switch {
		case err == nil:
			metrics.ReapedReservations.Inc()
			r.log.Info("released expired reservation",
				zap.String("reservation_id", res.ID),
				zap.String("unit_id", res.UnitID))
		case errors.Is(err, domain.ErrAlreadyReleased):
			// Lost a race with an explicit release; nothing to do.
		default:
			r.log.Warn("failed to release expired reservation",
				zap.String("reservation_id", res.ID), zap.Error(err))
		}
	}
}
