package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/egplabs/gateway/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBucketsExhaustionAndRefill(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	buckets := NewLocalBuckets(clk)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		decision, err := buckets.Consume(ctx, "k", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "request %d should pass", i+1)
	}

	decision, err := buckets.Consume(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, decision.RetryAfter, 12*time.Second+time.Millisecond)

	// 12s refills one token at 5/min.
	clk.Advance(12 * time.Second)
	decision, err = buckets.Consume(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = buckets.Consume(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestLocalBucketsNeverExceedCapacity(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	buckets := NewLocalBuckets(clk)
	ctx := context.Background()

	_, err := buckets.Consume(ctx, "k", 3, time.Minute)
	require.NoError(t, err)

	clk.Advance(time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		decision, err := buckets.Consume(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		if decision.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}

func TestLocalBucketsIsolatesKeys(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	buckets := NewLocalBuckets(clk)
	ctx := context.Background()

	decision, err := buckets.Consume(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = buckets.Consume(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = buckets.Consume(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestLocalSlots(t *testing.T) {
	slots := NewLocalSlots()
	ctx := context.Background()

	ok, err := slots.Acquire(ctx, "k", 2, "t1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = slots.Acquire(ctx, "k", 2, "t2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = slots.Acquire(ctx, "k", 2, "t3", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, slots.Release(ctx, "k", "t1"))

	ok, err = slots.Acquire(ctx, "k", 2, "t4", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalSlotsReleaseNeverUnderflows(t *testing.T) {
	slots := NewLocalSlots()
	ctx := context.Background()

	require.NoError(t, slots.Release(ctx, "k", "ghost"))

	ok, err := slots.Acquire(ctx, "k", 1, "t1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = slots.Acquire(ctx, "k", 1, "t2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecideRetryHint(t *testing.T) {
	d := decide(false, 0.5, 60, time.Minute)
	assert.False(t, d.Allowed)
	// Half a token at 1/s refills in 500ms.
	assert.Equal(t, 500*time.Millisecond, d.RetryAfter)

	d = decide(true, 3.9, 60, time.Minute)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
	assert.Zero(t, d.RetryAfter)
}
