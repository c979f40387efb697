package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkRateLimiterSpacing(t *testing.T) {
	interval := 20 * time.Millisecond
	limiter := NewSinkRateLimiter(interval)
	ctx := context.Background()

	const turns = 5
	start := time.Now()
	for i := 0; i < turns; i++ {
		require.NoError(t, limiter.AwaitTurn(ctx))
	}
	elapsed := time.Since(start)

	// Burst 1: the first turn is free, every following turn waits the interval.
	assert.GreaterOrEqual(t, elapsed, time.Duration(turns-1)*interval)
}

func TestSinkRateLimiterFirstTurnImmediate(t *testing.T) {
	limiter := NewSinkRateLimiter(time.Second)

	start := time.Now()
	require.NoError(t, limiter.AwaitTurn(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSinkRateLimiterContextCancellation(t *testing.T) {
	limiter := NewSinkRateLimiter(time.Hour)
	ctx := context.Background()

	// Consume the free first turn.
	require.NoError(t, limiter.AwaitTurn(ctx))

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := limiter.AwaitTurn(cancelCtx)
	assert.Error(t, err)
}

func TestSinkRateLimiterDefaultInterval(t *testing.T) {
	limiter := NewSinkRateLimiter(0)
	assert.Equal(t, time.Second, limiter.MinInterval())
}
