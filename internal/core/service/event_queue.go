package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/nairobikonnect/konnect/internal/core/domain"
	"github.com/nairobikonnect/konnect/internal/metrics"
)

// EventQueue buffers lifecycle events between the services and the broker
// worker pool. Enqueue never blocks: events are advisory, so a full queue
// drops the event and counts it instead of stalling a request.
type EventQueue struct {
	ch chan domain.Event
}

func NewEventQueue(size int) *EventQueue {
	return &EventQueue{ch: make(chan domain.Event, size)}
}

func (q *EventQueue) Enqueue(ev domain.Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	select {
	case q.ch <- ev:
	default:
		metrics.EventsDropped.Inc()
	}
}

func (q *EventQueue) C() <-chan domain.Event {
	return q.ch
}

func (q *EventQueue) Depth() int {
	return len(q.ch)
}

func (q *EventQueue) Close() {
	close(q.ch)
}
