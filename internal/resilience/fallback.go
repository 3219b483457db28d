package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no entry of a [FallbackGroup] could serve a
// call, either because it failed or because its breaker refused it.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig holds the breaker settings applied to every entry of a
// [FallbackGroup]. The entry name is filled in per entry.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type chainLink[T any] struct {
	name     string
	provider T
	breaker  *CircuitBreaker
}

// FallbackGroup chains a primary and zero or more fallbacks of one provider
// type. Entries are tried in registration order; an entry with an open
// breaker is skipped without a call.
//
// Entries must be registered before the group is used; registration is not
// synchronised with calls.
type FallbackGroup[T any] struct {
	chain []chainLink[T]
	cfg   FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends an entry with its own breaker.
func (g *FallbackGroup[T]) AddFallback(name string, provider T) {
	bc := g.cfg.CircuitBreaker
	bc.Name = name
	g.chain = append(g.chain, chainLink[T]{
		name:     name,
		provider: provider,
		breaker:  NewCircuitBreaker(bc),
	})
}

// Primary returns the first registered entry. ok is false for an empty group.
func (g *FallbackGroup[T]) Primary() (provider T, ok bool) {
	if len(g.chain) == 0 {
		var zero T
		return zero, false
	}
	return g.chain[0].provider, true
}

// Execute tries fn against each entry until one succeeds.
func (g *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(g, func(p T) (struct{}, error) {
		return struct{}{}, fn(p)
	})
	return err
}

// ExecuteWithResult tries fn against each entry of the group in order and
// returns the first successful result. A package-level function because Go
// methods cannot introduce the result type parameter.
func ExecuteWithResult[T any, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range g.chain {
		link := &g.chain[i]

		var result R
		err := link.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(link.provider)
			return callErr
		})
		if err == nil {
			return result, nil
		}

		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("provider skipped, circuit open", "provider", link.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", link.name, "error", err)
		}
	}

	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
