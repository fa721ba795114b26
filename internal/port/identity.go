package port

import "context"

type Principal struct {
	UserID string
	Role   string
}

// Identity resolves a bearer token to the authenticated caller. Unknown or
// expired tokens surface domain.ErrUnauthenticated.
type Identity interface {
	Resolve(ctx context.Context, token string) (*Principal, error)
}
