package port

import (
	"context"

	"github.com/nairobikonnect/konnect/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}
