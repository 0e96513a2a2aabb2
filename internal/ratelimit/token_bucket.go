package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Decision is the outcome of one token-bucket consume.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// BucketStore executes one check-and-decrement against a bucket.
type BucketStore interface {
	Consume(ctx context.Context, key string, maxTokens int, window time.Duration) (Decision, error)
}

// The whole read-refill-decrement-write cycle runs server-side so concurrent
// callers across processes see a consistent bucket. Tokens are returned as a
// string because Lua replies truncate numbers to integers.
const tokenBucketScript = `
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local rate = max / window

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = max
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(max, tokens + (delta * rate))
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens)}
`

type RedisBuckets struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisBuckets(client *redis.Client) *RedisBuckets {
	if client == nil {
		return nil
	}
	return &RedisBuckets{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (r *RedisBuckets) Consume(ctx context.Context, key string, maxTokens int, window time.Duration) (Decision, error) {
	if r == nil || r.client == nil {
		return Decision{}, errors.New("redis buckets not configured")
	}
	if key == "" || maxTokens <= 0 || window <= 0 {
		return Decision{}, errors.New("invalid bucket parameters")
	}

	windowMs := window.Milliseconds()
	ttlMs := windowMs * 2

	res, err := r.script.Run(ctx, r.client, []string{key}, maxTokens, windowMs, ttlMs).Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) < 2 {
		return Decision{}, errors.New("unexpected bucket script response")
	}

	allowed, _ := res[0].(int64)
	tokens := parseTokens(res[1])

	return decide(allowed == 1, tokens, maxTokens, window), nil
}

func parseTokens(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return parsed
	case int64:
		return float64(val)
	case float64:
		return val
	default:
		return 0
	}
}

// decide converts a post-consume token count into a Decision. Shared between
// the distributed and the in-process backends so both hand out identical
// retry hints.
func decide(allowed bool, tokens float64, maxTokens int, window time.Duration) Decision {
	if allowed {
		return Decision{Allowed: true, Remaining: int(math.Floor(tokens))}
	}

	rate := float64(maxTokens) / float64(window.Milliseconds())
	retryMs := math.Ceil((1 - tokens) / rate)
	if retryMs < 1 {
		retryMs = 1
	}
	return Decision{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}
}
