// Package resilience keeps the simulation generating when an LLM backend
// misbehaves.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops hammering a backend after repeated failures. [FallbackGroup] chains
// several backends of one provider type behind per-entry breakers so a dead
// primary is bypassed in favour of the next healthy fallback.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// refuses calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls to decide
	// whether the backend has recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures is how many consecutive failures open the breaker.
	// Default 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is how many probe calls the half-open state admits, and
	// how many must succeed to close again. Default 3.
	HalfOpenMax int
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 3
	}
	return c
}

// CircuitBreaker implements the classic three-state breaker.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeWins int
}

// NewCircuitBreaker creates a closed breaker from cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults(), state: StateClosed}
}

// Execute runs fn unless the breaker refuses the call. Open breakers return
// [ErrCircuitOpen] without invoking fn; half-open breakers admit at most
// HalfOpenMax probes.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	probe, admitted := cb.admit()
	cb.mu.Unlock()
	if !admitted {
		return ErrCircuitOpen
	}

	err := fn()

	cb.mu.Lock()
	cb.settle(err, probe)
	cb.mu.Unlock()
	return err
}

// admit decides whether a call may proceed and whether it counts as a
// half-open probe. Callers must hold cb.mu.
func (cb *CircuitBreaker) admit() (probe, admitted bool) {
	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, false
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeWins = 0
		slog.Info("circuit breaker probing backend", "name", cb.cfg.Name)
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, false
		}
		cb.probes++
		return true, true
	}

	return false, true
}

// settle records the call outcome. Callers must hold cb.mu.
func (cb *CircuitBreaker) settle(err error, probe bool) {
	if err == nil {
		if !probe {
			cb.failures = 0
			return
		}
		cb.probeWins++
		if cb.probeWins >= cb.cfg.HalfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			slog.Info("circuit breaker closed", "name", cb.cfg.Name)
		}
		return
	}

	if probe {
		// One failed probe sends the breaker straight back to open.
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.failures = cb.cfg.MaxFailures
		slog.Warn("circuit breaker reopened after failed probe", "name", cb.cfg.Name)
		return
	}

	cb.failures++
	cb.openedAt = time.Now()
	if cb.failures >= cb.cfg.MaxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.cfg.Name, "failures", cb.failures)
	}
}

// State reports the current mode. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeWins = 0
}
