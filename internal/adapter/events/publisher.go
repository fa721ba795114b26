package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/nairobikonnect/konnect/internal/core/domain"
)

const (
	exchangeName = "konnect.events"
	exchangeType = "topic"

	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
)

// Publisher fans lifecycle events out to a RabbitMQ topic exchange, routing
// by event type (reservation.created, payment.completed, ...).
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *zap.Logger
}

type envelope struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	ReservationID string `json:"reservation_id,omitempty"`
	UnitID        string `json:"unit_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
}

func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchangeName,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	log.Info("connected to rabbitmq", zap.String("exchange", exchangeName))

	return &Publisher{conn: conn, channel: channel, log: log}, nil
}

func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(envelope{
		EventID:       ev.ID,
		EventType:     string(ev.Type),
		OccurredAt:    ev.OccurredAt.Format(time.RFC3339),
		ReservationID: ev.ReservationID,
		UnitID:        ev.UnitID,
		TransactionID: ev.TransactionID,
		Quantity:      ev.Quantity,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		lastErr = p.channel.PublishWithContext(ctx,
			exchangeName,
			string(ev.Type), // routing key
			false,           // mandatory
			false,           // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    ev.ID,
				Timestamp:    ev.OccurredAt,
				Body:         body,
			})
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return fmt.Errorf("publish %s after %d attempts: %w", ev.Type, maxRetries, lastErr)
}

func (p *Publisher) Close() {
	p.channel.Close()
	p.conn.Close()
}
