package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// SlotStore counts in-flight requests per key via uniquely-tokened slots.
type SlotStore interface {
	Acquire(ctx context.Context, key string, limit int, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// Slots carry an expiry as their sorted-set score; entries from crashed
// callers fall out on the next acquire instead of leaking forever.
const slotAcquireScript = `
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local count = redis.call("ZCARD", KEYS[1])
if count >= tonumber(ARGV[2]) then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[3], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 1
`

type RedisSlots struct {
	client  *redis.Client
	acquire *redis.Script
}

func NewRedisSlots(client *redis.Client) *RedisSlots {
	if client == nil {
		return nil
	}
	return &RedisSlots{
		client:  client,
		acquire: redis.NewScript(slotAcquireScript),
	}
}

func (r *RedisSlots) Acquire(ctx context.Context, key string, limit int, token string, ttl time.Duration) (bool, error) {
	if r == nil || r.client == nil {
		return false, errors.New("redis slots not configured")
	}
	if key == "" || token == "" || limit <= 0 || ttl <= 0 {
		return false, errors.New("invalid slot parameters")
	}

	nowMs := time.Now().UnixMilli()
	expiresAtMs := nowMs + ttl.Milliseconds()

	res, err := r.acquire.Run(ctx, r.client, []string{key},
		strconv.FormatInt(nowMs, 10),
		limit,
		strconv.FormatInt(expiresAtMs, 10),
		token,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (r *RedisSlots) Release(ctx context.Context, key, token string) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.ZRem(ctx, key, token).Err()
}

// Slot is the release handle returned to the dispatch layer. Release is
// idempotent; callers may invoke it from every exit path.
type Slot struct {
	once    sync.Once
	release func()
}

func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(s.release)
}

func newSlot(release func()) *Slot {
	return &Slot{release: release}
}
