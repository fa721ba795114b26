package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nairobikonnect/konnect/internal/core/domain"
	"github.com/nairobikonnect/konnect/internal/metrics"
	"github.com/nairobikonnect/konnect/internal/port"
)

type PaymentService struct {
	db       port.DatabaseRepository
	provider port.PaymentProvider
	events   *EventQueue
	log      *zap.Logger
}

func NewPaymentService(db port.DatabaseRepository, provider port.PaymentProvider, events *EventQueue, log *zap.Logger) *PaymentService {
	return &PaymentService{
		db:       db,
		provider: provider,
		events:   events,
		log:      log,
	}
}

// Initiate starts a push payment with the provider and records a pending
// attempt keyed by the provider's transaction id. On provider rejection or
// network failure nothing is persisted.
func (s *PaymentService) Initiate(ctx context.Context, reservationID string, amount int64, payer string) (*domain.PaymentAttempt, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	accountRef := "konnect"
	if reservationID != "" {
		r, err := s.db.GetReservation(ctx, reservationID)
		if err != nil {
			return nil, err
		}
		switch r.Status {
		case domain.ReservationStatusCancelled:
			return nil, domain.ErrAlreadyReleased
		case domain.ReservationStatusConfirmed:
			return nil, domain.ErrAlreadyFinalized
		}
		accountRef = r.ID
	}

	result, err := s.provider.RequestPush(ctx, port.PushRequest{
		Amount:     amount,
		Payer:      payer,
		AccountRef: accountRef,
	})
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues("provider_error").Inc()
		return nil, err
	}

	p := domain.PaymentAttempt{
		TransactionID: result.TransactionID,
		ReservationID: reservationID,
		Amount:        amount,
		Payer:         payer,
		Status:        domain.PaymentStatusPending,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	if err := s.db.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	metrics.PaymentsTotal.WithLabelValues("pending").Inc()
	s.log.Info("payment initiated",
		zap.String("transaction_id", p.TransactionID),
		zap.String("reservation_id", reservationID),
		zap.Int64("amount", amount))

	return &p, nil
}

// Confirm applies the provider's asynchronous outcome. A replay carrying the
// same outcome for an already-finalized attempt is a no-op success; a
// conflicting outcome surfaces ErrAlreadyFinalized.
func (s *PaymentService) Confirm(ctx context.Context, transactionID string, outcome domain.PaymentStatus) error {
	if outcome != domain.PaymentStatusCompleted && outcome != domain.PaymentStatusFailed {
		return domain.ErrInvalidOutcome
	}

	p, err := s.db.GetPayment(ctx, transactionID)
	if err != nil {
		return err
	}

	if p.Status != domain.PaymentStatusPending {
		if p.Status == outcome {
			return nil // webhook redelivery
		}
		return domain.ErrAlreadyFinalized
	}

	if err := s.db.FinalizePayment(ctx, transactionID, outcome); err != nil {
		if errors.Is(err, domain.ErrAlreadyFinalized) {
			// Lost a race with a concurrent confirm. Re-read and apply the
			// same replay rule.
			current, readErr := s.db.GetPayment(ctx, transactionID)
			if readErr == nil && current.Status == outcome {
				return nil
			}
		}
		return err
	}

	metrics.PaymentsTotal.WithLabelValues(string(outcome)).Inc()

	evType := domain.EventPaymentFailed
	if outcome == domain.PaymentStatusCompleted {
		evType = domain.EventPaymentCompleted
	}
	s.events.Enqueue(domain.Event{
		Type:          evType,
		TransactionID: transactionID,
		ReservationID: p.ReservationID,
	})

	s.log.Info("payment finalized",
		zap.String("transaction_id", transactionID),
		zap.String("outcome", string(outcome)))

	return nil
}

// Status serves the polling endpoint.
func (s *PaymentService) Status(ctx context.Context, transactionID string) (*domain.PaymentAttempt, error) {
	return s.db.GetPayment(ctx, transactionID)
}
