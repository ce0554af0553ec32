package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is applied uniformly by every adapter around each wire call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether a failed attempt may be repeated.
	// Defaults to IsRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy is used when an adapter is configured without one.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

// NoRetry performs a single attempt.
var NoRetry = RetryPolicy{MaxAttempts: 1}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if p.Retryable == nil {
		p.Retryable = IsRetryable
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.MaxInterval = p.MaxDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

// Budget is the longest Do can run when every attempt is capped at
// perAttempt: all attempts plus the worst-case randomized wait between them.
func (p RetryPolicy) Budget(perAttempt time.Duration) time.Duration {
	p = p.withDefaults()
	total := time.Duration(p.MaxAttempts) * perAttempt
	interval := p.BaseDelay
	for i := 1; i < p.MaxAttempts; i++ {
		if interval > p.MaxDelay {
			interval = p.MaxDelay
		}
		wait := time.Duration(float64(interval) * (1 + backoff.DefaultRandomizationFactor))
		total += wait
		interval = time.Duration(float64(interval) * backoff.DefaultMultiplier)
	}
	return total
}

// Do runs op until it succeeds, returns a non-retryable error, the attempt
// budget is spent, or ctx is done. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	p = p.withDefaults()
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx))
}
