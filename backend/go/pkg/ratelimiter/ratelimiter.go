package ratelimiter

import "context"

// RateLimiter admits or rejects a request without blocking.
type RateLimiter interface {
	// Allow reports whether the request may proceed now.
	Allow() bool
}

// Waiter blocks until a request may proceed.
type Waiter interface {
	// Wait returns nil once a token is taken, or ctx.Err() if ctx ends first.
	Wait(ctx context.Context) error
}
