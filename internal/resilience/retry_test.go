package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-dev/chimera/internal/config"
)

func fastRetryConfig(maxRetries int) config.RetryConfig {
	return config.RetryConfig{
		Enabled:    true,
		MaxRetries: maxRetries,
		Delay:      time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func disabledBreaker() *Breaker {
	return NewBreaker(config.BreakerConfig{Enabled: false})
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	e := NewExecutor(fastRetryConfig(3), disabledBreaker())

	calls := 0
	err := e.Run(context.Background(), "dep", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunExhaustsAfterMaxRetriesPlusOne(t *testing.T) {
	e := NewExecutor(fastRetryConfig(3), disabledBreaker())
	boom := errors.New("boom")

	calls := 0
	err := e.Run(context.Background(), "dep", func(context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 4, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, boom)
}

func TestRunRecoversOnLaterAttempt(t *testing.T) {
	e := NewExecutor(fastRetryConfig(3), disabledBreaker())

	calls := 0
	err := e.Run(context.Background(), "dep", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunDisabledRetriesOnce(t *testing.T) {
	e := NewExecutor(config.RetryConfig{Enabled: false}, disabledBreaker())

	calls := 0
	err := e.Run(context.Background(), "dep", func(context.Context) error {
		calls++
		return errors.New("boom")
	})

	assert.Equal(t, 1, calls)
	var exhausted *ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestRunOpenCircuitShortCircuits(t *testing.T) {
	breaker := NewBreaker(config.BreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})
	e := NewExecutor(fastRetryConfig(3), breaker)

	// First run opens the circuit.
	calls := 0
	_ = e.Run(context.Background(), "dep", func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	assert.Equal(t, 1, calls, "open circuit must cut the remaining retries")

	// Second run is rejected outright: no attempt, no waiting.
	calls = 0
	start := time.Now()
	err := e.Run(context.Background(), "dep", func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRunDownstreamFailureDoesNotOpenCircuit(t *testing.T) {
	breaker := NewBreaker(config.BreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})
	e := NewExecutor(fastRetryConfig(3), breaker)
	boom := errors.New("delivery failed")

	calls := 0
	err := e.Run(context.Background(), "dep", func(context.Context) error {
		calls++
		return &DownstreamError{Err: boom}
	})

	// The operation is still retried and reported exhausted.
	assert.Equal(t, 4, calls)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, boom)

	// But the guarded dependency's circuit stays closed: the failures
	// happened after its call succeeded.
	assert.Equal(t, StateClosed, breaker.State("dep"))
	assert.NoError(t, breaker.Allow("dep"))
}

func TestBackoffDelaysAreCappedExponential(t *testing.T) {
	e := NewExecutor(config.RetryConfig{
		Enabled:    true,
		MaxRetries: 5,
		Delay:      100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}, disabledBreaker())

	b := e.newBackOff(context.Background())

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
	}
	for i, expected := range want {
		got := b.NextBackOff()
		require.NotEqual(t, backoff.Stop, got, "backoff stopped early at step %d", i)
		assert.Equal(t, expected, got, "delay before retry %d", i+1)
		assert.LessOrEqual(t, got, 2*time.Second)
	}
	assert.Equal(t, backoff.Stop, b.NextBackOff(), "retries must be bounded")
}
