// Package services provides external service integrations and technical concerns like rate limiting and tokens
package services

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls against one external API. AwaitTurn blocks until
// at least the configured minimum interval has elapsed since the previous
// turn was granted, then marks a new turn as granted. A single shared
// instance guards all calls to a given sink.
type RateLimiter interface {
	AwaitTurn(ctx context.Context) error
}

// SinkRateLimiter enforces minimum inter-call spacing using a token bucket
// with burst 1: the first turn is immediate, every following turn waits out
// the interval. Safe under concurrent callers.
type SinkRateLimiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewSinkRateLimiter creates a limiter granting one turn per minInterval.
func NewSinkRateLimiter(minInterval time.Duration) *SinkRateLimiter {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &SinkRateLimiter{
		limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		interval: minInterval,
	}
}

// AwaitTurn blocks until the caller may proceed or ctx is done.
func (l *SinkRateLimiter) AwaitTurn(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// MinInterval returns the configured spacing between turns.
func (l *SinkRateLimiter) MinInterval() time.Duration {
	return l.interval
}
