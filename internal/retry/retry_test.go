package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantscope/harvester/internal/harvest"
)

func fastOpts() Options {
	return Options{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_FailTwiceThenSucceed(t *testing.T) {
	calls := 0
	op := func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", fmt.Errorf("boom %d", calls)
		}
		return "ok", nil
	}
	v, res, err := Do(context.Background(), op, fastOpts())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, res.Attempts)
	assert.Len(t, res.Errors, 2)
}

func TestDo_ConditionRejectsImmediately(t *testing.T) {
	calls := 0
	op := func(context.Context) (int, error) {
		calls++
		return 0, harvest.ErrAuthFailed
	}
	opts := fastOpts()
	opts.Condition = NotAuthError
	_, res, err := Do(context.Background(), op, opts)
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a rejected error must not consume a retry")
	assert.Equal(t, 0, res.Attempts)
}

func TestDo_ExhaustionPropagatesLastError(t *testing.T) {
	last := errors.New("final failure")
	calls := 0
	op := func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("earlier")
		}
		return 0, last
	}
	opts := fastOpts()
	opts.MaxRetries = 2
	_, res, err := Do(context.Background(), op, opts)
	assert.ErrorIs(t, err, last)
	assert.Len(t, res.Errors, 3)
}

func TestDo_OnRetryObservesAttempts(t *testing.T) {
	var seen []int
	op := func(context.Context) (int, error) { return 0, errors.New("x") }
	opts := fastOpts()
	opts.MaxRetries = 2
	opts.OnRetry = func(_ error, attempt int) { seen = append(seen, attempt) }
	_, _, err := Do(context.Background(), op, opts)
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestDoWithFallbacks_FirstSuccessWins(t *testing.T) {
	ops := []func(context.Context) (string, error){
		func(context.Context) (string, error) { return "", errors.New("a down") },
		func(context.Context) (string, error) { return "b", nil },
		func(context.Context) (string, error) { t.Fatal("must not run"); return "", nil },
	}
	opts := fastOpts()
	opts.MaxRetries = 0
	v, err := DoWithFallbacks(context.Background(), ops, opts)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestDoWithFallbacks_AggregatesAllErrors(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	ops := []func(context.Context) (string, error){
		func(context.Context) (string, error) { return "", errA },
		func(context.Context) (string, error) { return "", errB },
	}
	opts := fastOpts()
	opts.MaxRetries = 0
	_, err := DoWithFallbacks(context.Background(), ops, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestBreaker_OpensAfterThresholdAndRejectsFast(t *testing.T) {
	b := NewBreakers()
	cfg := BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Hour}
	opts := fastOpts()
	opts.MaxRetries = 0

	calls := 0
	failing := func(context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	}
	for i := 0; i < 3; i++ {
		_, _, err := DoWithBreaker(context.Background(), b, "src", failing, opts, cfg)
		require.Error(t, err)
		require.NotErrorIs(t, err, harvest.ErrCircuitOpen)
	}
	before := calls
	_, _, err := DoWithBreaker(context.Background(), b, "src", failing, opts, cfg)
	assert.ErrorIs(t, err, harvest.ErrCircuitOpen)
	assert.Equal(t, before, calls, "open circuit must not invoke the operation")
}

func TestBreaker_HalfOpenClosesOnSuccess(t *testing.T) {
	b := NewBreakers()
	base := time.Now()
	b.now = func() time.Time { return base }
	cfg := BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute}
	opts := fastOpts()
	opts.MaxRetries = 0

	_, _, err := DoWithBreaker(context.Background(), b, "src",
		func(context.Context) (int, error) { return 0, errors.New("down") }, opts, cfg)
	require.Error(t, err)

	_, _, err = DoWithBreaker(context.Background(), b, "src",
		func(context.Context) (int, error) { return 1, nil }, opts, cfg)
	assert.ErrorIs(t, err, harvest.ErrCircuitOpen, "still inside the reset timeout")

	// After the reset timeout one trial attempt is permitted; success closes.
	b.now = func() time.Time { return base.Add(2 * time.Minute) }
	v, _, err := DoWithBreaker(context.Background(), b, "src",
		func(context.Context) (int, error) { return 7, nil }, opts, cfg)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	// Closed again: calls flow normally.
	_, _, err = DoWithBreaker(context.Background(), b, "src",
		func(context.Context) (int, error) { return 8, nil }, opts, cfg)
	assert.NoError(t, err)
}

func TestConditions_Combinators(t *testing.T) {
	netOrHTTP := Or(IsNetworkError, IsTransientHTTP)
	assert.True(t, netOrHTTP(fmt.Errorf("wrapped: %w", harvest.ErrTransientHTTP)))
	assert.False(t, netOrHTTP(errors.New("plain")))

	assert.False(t, Transient(harvest.ErrAuthFailed))
	assert.True(t, Transient(fmt.Errorf("fetch: %w", harvest.ErrTransientNetwork)))
}
