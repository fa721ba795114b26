package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nairobikonnect/konnect/internal/core/domain"
	"github.com/nairobikonnect/konnect/internal/port"
)

const sessionKeyPrefix = "session:"

type session struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// RedisIdentity resolves opaque bearer tokens against session records in
// Redis. Token issuance (login) lives outside this service; it only consumes
// sessions the identity provider wrote.
type RedisIdentity struct {
	client *redis.Client
}

func NewRedisIdentity(client *redis.Client) *RedisIdentity {
	return &RedisIdentity{client: client}
}

func (i *RedisIdentity) Resolve(ctx context.Context, token string) (*port.Principal, error) {
	raw, err := i.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &port.Principal{UserID: s.UserID, Role: s.Role}, nil
}

// Grant writes a session record. Used by the bootstrap admin token and tests.
func (i *RedisIdentity) Grant(ctx context.Context, token, userID, role string, ttl time.Duration) error {
	raw, err := json.Marshal(session{UserID: userID, Role: role})
	if err != nil {
		return err
	}
	return i.client.Set(ctx, sessionKeyPrefix+token, raw, ttl).Err()
}
