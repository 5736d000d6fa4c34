package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrAndExpire atomically increments key and, only on the first
// increment, sets its TTL — mirroring the fixed-window INCR+EXPIRE
// shape used for the teacher's token-bucket Lua script, adapted here
// to fixed-window counters (see DESIGN.md).
var incrAndExpire = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RemoteStore is the redis-backed atomic increment-and-test surface.
type RemoteStore interface {
	IncrAndTest(ctx context.Context, key string, ttl time.Duration, limit int64) (count int64, err error)
}

// redisStore implements RemoteStore against a real redis deployment.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore builds a RemoteStore backed by client.
func NewRedisStore(client *redis.Client) RemoteStore {
	return &redisStore{client: client}
}

func (s *redisStore) IncrAndTest(ctx context.Context, key string, ttl time.Duration, limit int64) (int64, error) {
	res, err := incrAndExpire.Run(ctx, s.client, []string{key}, int64(ttl.Seconds())).Int64()
	if err != nil {
		return 0, err
	}
	return res, nil
}
