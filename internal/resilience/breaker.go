// Package resilience provides the fault-tolerant delivery pipeline:
// circuit breaking, bounded retries with backoff, and dead-lettering.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/chimera-dev/chimera/internal/config"
)

// ErrCircuitOpen is returned when a call is rejected because the guarded
// dependency is presumed unhealthy. It is distinct from an ordinary
// operation failure: callers must not retry against it.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the circuit breaker state for one dependency.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type depState struct {
	state    State
	failures int
	openedAt time.Time
	// probing is set while a single half-open trial call is in flight;
	// further callers are rejected until its outcome is recorded.
	probing bool
}

// Breaker gates calls to external dependencies. One depState exists per
// guarded dependency name and is shared across all actors calling it.
type Breaker struct {
	enabled   bool
	threshold int
	recovery  time.Duration
	now       func() time.Time

	mu   sync.Mutex
	deps map[string]*depState
}

// NewBreaker creates a circuit breaker from configuration.
func NewBreaker(cfg config.BreakerConfig) *Breaker {
	return &Breaker{
		enabled:   cfg.Enabled,
		threshold: cfg.FailureThreshold,
		recovery:  cfg.RecoveryTimeout,
		now:       time.Now,
		deps:      make(map[string]*depState),
	}
}

// Allow reports whether a call to the dependency may proceed. It returns
// ErrCircuitOpen while the circuit is open and the recovery timeout has
// not yet elapsed; once it has, the circuit moves to half-open and
// exactly one call is let through as a probe. Concurrent callers are
// rejected until the probe's outcome is recorded.
func (b *Breaker) Allow(dep string) error {
	if !b.enabled {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.dep(dep)
	switch d.state {
	case StateOpen:
		if b.now().Sub(d.openedAt) < b.recovery {
			return ErrCircuitOpen
		}
		d.state = StateHalfOpen
		d.probing = true
	case StateHalfOpen:
		if d.probing {
			return ErrCircuitOpen
		}
		d.probing = true
	}
	return nil
}

// Record feeds the outcome of a call back into the breaker.
func (b *Breaker) Record(dep string, err error) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.dep(dep)
	d.probing = false
	if err == nil {
		d.state = StateClosed
		d.failures = 0
		return
	}

	d.failures++
	if d.state == StateHalfOpen || d.failures >= b.threshold {
		d.state = StateOpen
		d.openedAt = b.now()
	}
}

// State returns the current state for a dependency. A disabled breaker
// always reports closed.
func (b *Breaker) State(dep string) State {
	if !b.enabled {
		return StateClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.dep(dep)
	if d.state == StateOpen && b.now().Sub(d.openedAt) >= b.recovery {
		return StateHalfOpen
	}
	return d.state
}

func (b *Breaker) dep(name string) *depState {
	d, ok := b.deps[name]
	if !ok {
		d = &depState{state: StateClosed}
		b.deps[name] = d
	}
	return d
}
