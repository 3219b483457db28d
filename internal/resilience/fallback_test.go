package resilience

import (
	"errors"
	"testing"
	"time"
)

func newStringGroup(maxFailures int) *FallbackGroup[string] {
	g := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  maxFailures,
			ResetTimeout: time.Hour,
		},
	})
	g.AddFallback("secondary", "secondary")
	return g
}

func TestFallbackGroup_PrimaryServes(t *testing.T) {
	g := newStringGroup(3)

	var served string
	err := g.Execute(func(v string) error {
		served = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if served != "primary" {
		t.Fatalf("served = %q, want primary", served)
	}
}

func TestFallbackGroup_FailoverToSecondary(t *testing.T) {
	g := newStringGroup(3)

	var served string
	err := g.Execute(func(v string) error {
		if v == "primary" {
			return errBackend
		}
		served = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if served != "secondary" {
		t.Fatalf("served = %q, want secondary", served)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	g := newStringGroup(3)

	err := g.Execute(func(string) error { return errBackend })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	g := newStringGroup(2)

	// Open the primary's breaker.
	for i := 0; i < 2; i++ {
		_ = g.Execute(func(v string) error {
			if v == "primary" {
				return errBackend
			}
			return nil
		})
	}

	primaryCalled := false
	err := g.Execute(func(v string) error {
		if v == "primary" {
			primaryCalled = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primaryCalled {
		t.Fatal("primary was called despite an open breaker")
	}
}

func TestFallbackGroup_Primary(t *testing.T) {
	g := newStringGroup(3)
	p, ok := g.Primary()
	if !ok || p != "primary" {
		t.Fatalf("Primary() = %q, %v", p, ok)
	}

	var empty FallbackGroup[string]
	if _, ok := empty.Primary(); ok {
		t.Fatal("empty group should report no primary")
	}
}

func TestExecuteWithResult_ReturnsFirstSuccess(t *testing.T) {
	g := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	g.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(g, func(v int) (string, error) {
		if v == 10 {
			return "", errBackend
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", result)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	g := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := ExecuteWithResult(g, func(int) (string, error) {
		return "", errBackend
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
