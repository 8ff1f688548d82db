package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowHonoursCapacityAndRefill(t *testing.T) {
	clock := time.Unix(100, 0)
	tb := NewTokenBucket(2, 2)
	tb.now = func() time.Time { return clock }
	tb.lastTokenTime = clock

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clock = clock.Add(500 * time.Millisecond)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clock = clock.Add(time.Hour)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "refill must not exceed capacity")
}

func TestWaitBlocksUntilTokenAvailable(t *testing.T) {
	tb := NewTokenBucket(50, 1)
	ctx := context.Background()

	require.NoError(t, tb.Wait(ctx))
	start := time.Now()
	require.NoError(t, tb.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestWaitReturnsContextError(t *testing.T) {
	tb := NewTokenBucket(0.001, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
}
