// Package retry retries transient backend/transport failures with
// exponential backoff, adapted from the teacher's executor package
// retry loop (same functional-Option shape and attempt-counting loop),
// generalized from "retry a subprocess" to "retry a backend call."
package retry

import (
	"context"
	"time"

	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

// Options configures a retry loop.
type Options struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	RetryOn      func(error) bool
}

// Option modifies Options.
type Option func(*Options)

// DefaultOptions returns the defaults: 3 attempts, 200ms initial delay
// doubling up to 5s, retrying only ferrors.KindTransport errors.
func DefaultOptions() *Options {
	return &Options{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		RetryOn:      ferrors.IsRetryable,
	}
}

// WithMaxAttempts sets the total number of attempts (including the
// first), so 1 means no retry.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithBackoff sets the initial delay, cap, and growth multiplier.
func WithBackoff(initial, max time.Duration, multiplier float64) Option {
	return func(o *Options) {
		o.InitialDelay = initial
		o.MaxDelay = max
		o.Multiplier = multiplier
	}
}

// WithRetryCondition overrides which errors are retried.
func WithRetryCondition(fn func(error) bool) Option {
	return func(o *Options) { o.RetryOn = fn }
}

// Do runs fn, retrying per opts until it succeeds, a non-retryable
// error is returned, the attempt budget is exhausted, or ctx is
// cancelled. The final error is returned unwrapped from the last
// attempt.
func Do(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.MaxAttempts < 1 {
		options.MaxAttempts = 1
	}

	delay := options.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= options.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == options.MaxAttempts {
			break
		}
		if options.RetryOn != nil && !options.RetryOn(lastErr) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * options.Multiplier)
		if delay > options.MaxDelay {
			delay = options.MaxDelay
		}
	}

	return lastErr
}
