package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/egplabs/gateway/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLimiterWithoutRedisUsesLocalBuckets(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(nil, clk, zap.NewNop(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision := limiter.Consume(ctx, "k", 3, time.Minute)
		assert.True(t, decision.Allowed)
	}
	decision := limiter.Consume(ctx, "k", 3, time.Minute)
	assert.False(t, decision.Allowed)
}

func TestConcurrencyLimiterBoundsInFlight(t *testing.T) {
	limiter := NewConcurrencyLimiter(nil, zap.NewNop(), nil)
	ctx := context.Background()

	first, ok := limiter.Acquire(ctx, "k", 2)
	require.True(t, ok)
	second, ok := limiter.Acquire(ctx, "k", 2)
	require.True(t, ok)

	_, ok = limiter.Acquire(ctx, "k", 2)
	assert.False(t, ok)

	first.Release()

	third, ok := limiter.Acquire(ctx, "k", 2)
	assert.True(t, ok)

	second.Release()
	third.Release()
}

func TestSlotReleaseIsIdempotent(t *testing.T) {
	limiter := NewConcurrencyLimiter(nil, zap.NewNop(), nil)
	ctx := context.Background()

	slot, ok := limiter.Acquire(ctx, "k", 1)
	require.True(t, ok)

	slot.Release()
	slot.Release()

	// A double release must not free a slot someone else holds.
	again, ok := limiter.Acquire(ctx, "k", 1)
	require.True(t, ok)
	_, ok = limiter.Acquire(ctx, "k", 1)
	assert.False(t, ok)
	again.Release()
}

func TestNilSlotReleaseIsSafe(t *testing.T) {
	var slot *Slot
	slot.Release()
}
