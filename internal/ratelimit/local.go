package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/egplabs/gateway/internal/clock"
)

const (
	localPruneSize = 10000
	localIdleMax   = 10 * time.Minute
)

type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

// LocalBuckets is the in-process fallback. Its state is owned by the
// instance, created at service start and injected where needed; the global
// guarantee degrades to per-process while in use.
type LocalBuckets struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	clock   clock.Clock
}

func NewLocalBuckets(clk clock.Clock) *LocalBuckets {
	return &LocalBuckets{
		buckets: make(map[string]*bucketState),
		clock:   clk,
	}
}

func (l *LocalBuckets) Consume(ctx context.Context, key string, maxTokens int, window time.Duration) (Decision, error) {
	_ = ctx
	now := l.clock.Now()
	rate := float64(maxTokens) / float64(window.Milliseconds())

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.buckets[key]
	if !ok {
		state = &bucketState{tokens: float64(maxTokens), lastRefill: now}
		l.buckets[key] = state
		l.pruneLocked(now)
	} else {
		elapsed := now.Sub(state.lastRefill).Milliseconds()
		if elapsed > 0 {
			state.tokens += float64(elapsed) * rate
			if state.tokens > float64(maxTokens) {
				state.tokens = float64(maxTokens)
			}
		}
		state.lastRefill = now
	}

	allowed := state.tokens >= 1
	if allowed {
		state.tokens--
	}
	return decide(allowed, state.tokens, maxTokens, window), nil
}

func (l *LocalBuckets) pruneLocked(now time.Time) {
	if len(l.buckets) < localPruneSize {
		return
	}
	for key, state := range l.buckets {
		if now.Sub(state.lastRefill) > localIdleMax {
			delete(l.buckets, key)
		}
	}
}

// LocalSlots is the in-process concurrency fallback: a plain counter per key.
type LocalSlots struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewLocalSlots() *LocalSlots {
	return &LocalSlots{counts: make(map[string]int)}
}

func (l *LocalSlots) Acquire(ctx context.Context, key string, limit int, token string, ttl time.Duration) (bool, error) {
	_ = ctx
	_ = token
	_ = ttl

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.counts[key] >= limit {
		return false, nil
	}
	l.counts[key]++
	return true, nil
}

func (l *LocalSlots) Release(ctx context.Context, key, token string) error {
	_ = ctx
	_ = token

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.counts[key] > 0 {
		l.counts[key]--
		if l.counts[key] == 0 {
			delete(l.counts, key)
		}
	}
	return nil
}
