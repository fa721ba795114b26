package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix  = "idem:"
	availabilityKeyPrefix = "avail:"

	idempotencyKeyTTL  = 24 * time.Hour
	availabilityKeyTTL = time.Minute
)

// claimScript maps an idempotency key to its reservation id only when the key
// is unclaimed, returning the prior id otherwise. Running it as a script keeps
// the check-and-set atomic.
var claimScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
	return existing
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
return ''
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) ClaimIdempotencyKey(ctx context.Context, key, reservationID string) (string, error) {
	prior, err := claimScript.Run(ctx, r.client,
		[]string{idempotencyKeyPrefix + key}, reservationID, int(idempotencyKeyTTL.Seconds())).Text()
	if err != nil {
		return "", err
	}
	return prior, nil
}

func (r *RedisAdapter) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) SetAvailability(ctx context.Context, unitID string, remaining int) error {
	return r.client.Set(ctx, availabilityKeyPrefix+unitID, remaining, availabilityKeyTTL).Err()
}

func (r *RedisAdapter) GetAvailability(ctx context.Context, unitID string) (int, bool, error) {
	remaining, err := r.client.Get(ctx, availabilityKeyPrefix+unitID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return remaining, true, nil
}
