package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/chimera-dev/chimera/internal/config"
)

// ExhaustedError is returned when every retry attempt has failed. It
// carries the last failure so the caller can dead-letter the message
// with a meaningful reason.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// DownstreamError marks a failure that happened after the guarded
// dependency call itself succeeded (for example, reply delivery failing
// once generation already returned). The retry pipeline still retries
// and dead-letters the operation, but the breaker records a success for
// the guarded dependency so an unrelated outage cannot open its circuit.
type DownstreamError struct {
	Err error
}

func (e *DownstreamError) Error() string {
	return e.Err.Error()
}

func (e *DownstreamError) Unwrap() error {
	return e.Err
}

// Executor wraps a fallible operation with bounded exponential backoff,
// consulting the circuit breaker before each attempt.
type Executor struct {
	enabled    bool
	maxRetries uint64
	delay      time.Duration
	maxDelay   time.Duration
	breaker    *Breaker
}

// NewExecutor creates a retry executor from configuration.
func NewExecutor(cfg config.RetryConfig, breaker *Breaker) *Executor {
	return &Executor{
		enabled:    cfg.Enabled,
		maxRetries: uint64(cfg.MaxRetries),
		delay:      cfg.Delay,
		maxDelay:   cfg.MaxDelay,
		breaker:    breaker,
	}
}

// newBackOff builds the per-run backoff policy: delay before attempt k is
// min(delay*2^(k-1), maxDelay), with no jitter and no elapsed-time cap.
func (e *Executor) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.delay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = e.maxDelay
	b.MaxElapsedTime = 0

	retries := e.maxRetries
	if !e.enabled {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

// Run executes op, retrying transient failures up to the configured
// number of additional attempts. A rejection by the circuit breaker for
// dep short-circuits immediately with ErrCircuitOpen; it neither consumes
// a retry attempt nor waits. All other terminal failures are reported as
// an ExhaustedError carrying the last cause.
func (e *Executor) Run(ctx context.Context, dep string, op func(context.Context) error) error {
	attempts := 0

	wrapped := func() error {
		if err := e.breaker.Allow(dep); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		err := op(ctx)
		var downstream *DownstreamError
		if errors.As(err, &downstream) {
			// The guarded call succeeded; the failure lies elsewhere.
			e.breaker.Record(dep, nil)
		} else {
			e.breaker.Record(dep, err)
		}
		return err
	}

	err := backoff.Retry(wrapped, e.newBackOff(ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCircuitOpen) {
		return err
	}
	return &ExhaustedError{Attempts: attempts, Err: err}
}
