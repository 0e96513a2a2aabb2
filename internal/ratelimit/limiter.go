package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/egplabs/gateway/internal/clock"
	"github.com/egplabs/gateway/internal/observability/metrics"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	slotTTL          = 5 * time.Minute
	reProbeInterval  = 15 * time.Second
	releaseOpTimeout = 250 * time.Millisecond
)

// failover tracks whether the distributed backend is usable. The probe
// result is cached for the process lifetime and re-attempted on an interval
// once a call has failed.
type failover struct {
	degraded  atomic.Bool
	lastProbe atomic.Int64
}

func (f *failover) tryRemote() bool {
	if !f.degraded.Load() {
		return true
	}
	last := f.lastProbe.Load()
	now := time.Now().UnixNano()
	if now-last < int64(reProbeInterval) {
		return false
	}
	return f.lastProbe.CompareAndSwap(last, now)
}

func (f *failover) reportSuccess() {
	f.degraded.Store(false)
}

func (f *failover) reportFailure() {
	f.degraded.Store(true)
	f.lastProbe.Store(time.Now().UnixNano())
}

// Limiter is the token-bucket admission facade: distributed when the cache
// is reachable, per-process otherwise. Consume never fails the request path.
type Limiter struct {
	remote BucketStore
	local  *LocalBuckets
	fo     failover
	log    *zap.Logger
	stats  *metrics.Metrics
}

func NewLimiter(client *redis.Client, clk clock.Clock, log *zap.Logger, stats *metrics.Metrics) *Limiter {
	l := &Limiter{
		local: NewLocalBuckets(clk),
		log:   log.Named("ratelimit.buckets"),
		stats: stats,
	}
	if rb := NewRedisBuckets(client); rb != nil {
		l.remote = rb
	}
	return l
}

func (l *Limiter) Consume(ctx context.Context, key string, maxTokens int, window time.Duration) Decision {
	if l.remote != nil && l.fo.tryRemote() {
		decision, err := l.remote.Consume(ctx, key, maxTokens, window)
		if err == nil {
			l.fo.reportSuccess()
			return decision
		}
		l.fo.reportFailure()
		l.stats.FallbackActivated("buckets")
		l.log.Warn("distributed bucket unavailable, using process-local fallback",
			zap.String("key", key), zap.Error(err))
	}

	decision, _ := l.local.Consume(ctx, key, maxTokens, window)
	return decision
}

// ConcurrencyLimiter bounds simultaneous in-flight requests per key.
type ConcurrencyLimiter struct {
	remote SlotStore
	local  *LocalSlots
	fo     failover
	log    *zap.Logger
	stats  *metrics.Metrics
}

func NewConcurrencyLimiter(client *redis.Client, log *zap.Logger, stats *metrics.Metrics) *ConcurrencyLimiter {
	c := &ConcurrencyLimiter{
		local: NewLocalSlots(),
		log:   log.Named("ratelimit.slots"),
		stats: stats,
	}
	if rs := NewRedisSlots(client); rs != nil {
		c.remote = rs
	}
	return c
}

// Acquire admits the request if fewer than limit slots are held for the key.
// The returned handle must be released on every exit path; releasing twice
// is a no-op.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context, key string, limit int) (*Slot, bool) {
	token := uuid.NewString()

	if c.remote != nil && c.fo.tryRemote() {
		ok, err := c.remote.Acquire(ctx, key, limit, token, slotTTL)
		if err == nil {
			c.fo.reportSuccess()
			if !ok {
				return nil, false
			}
			return newSlot(c.releaser(c.remote, key, token)), true
		}
		c.fo.reportFailure()
		c.stats.FallbackActivated("slots")
		c.log.Warn("distributed slot set unavailable, using process-local fallback",
			zap.String("key", key), zap.Error(err))
	}

	ok, _ := c.local.Acquire(ctx, key, limit, token, slotTTL)
	if !ok {
		return nil, false
	}
	return newSlot(c.releaser(c.local, key, token)), true
}

// releaser binds the release to the backend that granted the slot, so a
// backend flip between acquire and release cannot strand the entry.
func (c *ConcurrencyLimiter) releaser(store SlotStore, key, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseOpTimeout)
		defer cancel()
		if err := store.Release(ctx, key, token); err != nil {
			c.log.Warn("slot release failed", zap.String("key", key), zap.Error(err))
		}
	}
}
