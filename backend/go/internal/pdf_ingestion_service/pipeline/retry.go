package pipeline

import (
	"context"
	"errors"
	"time"

	"otherly/backend/go/internal/config"
	"otherly/backend/go/pkg/circuitbreaker"
)

// RetryPolicy retries ExternalServiceError failures with capped exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryFromConfig builds a policy from validated config.
func RetryFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   config.Duration(cfg.BaseDelay),
		MaxDelay:    config.Duration(cfg.MaxDelay),
	}
}

// NoRetry runs an operation exactly once.
var NoRetry = RetryPolicy{MaxAttempts: 1}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) == KindExternalService
}

// Do runs fn until it succeeds, fails with a non-retryable error, attempts
// run out or ctx ends. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil || !retryable(err) || attempt == attempts {
			return err
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
