// Package retry provides generic operation-retry orchestration: exponential
// backoff with jitter, ordered fallback chains, and a circuit breaker.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Options controls one retried operation.
type Options struct {
	// MaxRetries is how many retries may follow the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// BackoffMultiplier defaults to 2.
	BackoffMultiplier float64
	// Jitter adds a random +/-25% term to each backoff delay.
	Jitter bool
	// Condition, when set, is consulted on every failure; returning false
	// rethrows the error immediately without consuming a retry.
	Condition Condition
	// OnRetry observes each failed attempt before the next one runs.
	OnRetry func(err error, attempt int)
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 250 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = 2
	}
	return o
}

// Result reports how a retried operation went, returned alongside the final
// value so callers can observe degraded-but-successful operations.
type Result struct {
	// Attempts is how many retries were consumed before the outcome
	// (0 means first-try success).
	Attempts  int
	TotalTime time.Duration
	// Errors holds the error from every failed attempt, in order.
	Errors []error
}

// Do runs op, retrying per opts, and returns the value, the attempt history,
// and the final error. After the retry budget is exhausted the last error is
// propagated unchanged (wrapped only by the history).
func Do[T any](ctx context.Context, op func(context.Context) (T, error), opts Options) (T, Result, error) {
	opts = opts.withDefaults()
	var zero T
	res := Result{}
	start := time.Now()

	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			res.Attempts = attempt
			res.TotalTime = time.Since(start)
			return v, res, nil
		}
		res.Errors = append(res.Errors, err)

		if opts.Condition != nil && !opts.Condition(err) {
			res.Attempts = attempt
			res.TotalTime = time.Since(start)
			return zero, res, err
		}
		if attempt >= opts.MaxRetries {
			res.Attempts = attempt
			res.TotalTime = time.Since(start)
			return zero, res, err
		}
		if opts.OnRetry != nil {
			opts.OnRetry(err, attempt+1)
		}
		if werr := sleep(ctx, backoff(opts, attempt)); werr != nil {
			res.Attempts = attempt
			res.TotalTime = time.Since(start)
			return zero, res, werr
		}
	}
}

// DoWithFallbacks tries each operation in order, each wrapped in Do, and
// returns on the first success. If all fail, the error aggregates every
// underlying failure.
func DoWithFallbacks[T any](ctx context.Context, ops []func(context.Context) (T, error), opts Options) (T, error) {
	var zero T
	var failures []error
	for i, op := range ops {
		v, _, err := Do(ctx, op, opts)
		if err == nil {
			return v, nil
		}
		failures = append(failures, fmt.Errorf("fallback %d: %w", i, err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(failures) == 0 {
		return zero, errors.New("no operations provided")
	}
	return zero, fmt.Errorf("all %d operations failed: %w", len(failures), errors.Join(failures...))
}

// backoff computes the delay before retry number attempt+1.
func backoff(opts Options, attempt int) time.Duration {
	d := float64(opts.BaseDelay) * math.Pow(opts.BackoffMultiplier, float64(attempt))
	if d > float64(opts.MaxDelay) {
		d = float64(opts.MaxDelay)
	}
	if opts.Jitter {
		// +/-25%
		d += d * (rand.Float64()*0.5 - 0.25)
	}
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
