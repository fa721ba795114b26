package port

import (
	"context"
	"errors"
)

// Provider failures, distinguished so callers can map them to responses.
// None of these leave a persisted payment attempt behind.
var (
	ErrProviderRejected    = errors.New("payment provider rejected request")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderTimeout     = errors.New("payment provider timed out")
)

type PushRequest struct {
	Amount     int64  // minor units
	Payer      string // subscriber phone number
	AccountRef string
}

type PushResult struct {
	TransactionID string // provider-assigned, globally unique
}

// PaymentProvider starts a push payment with the external mobile-money
// provider. The provider answers synchronously with a transaction id and
// delivers the final outcome later through the callback endpoint.
type PaymentProvider interface {
	RequestPush(ctx context.Context, req PushRequest) (*PushResult, error)
}
