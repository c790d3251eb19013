package resilience

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("connection refused")

func fail() error    { return errDown }
func succeed() error { return nil }

func TestCircuitBreaker_BasicTransitions(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 2, OpenTimeout: 5 * time.Second, HalfOpenProbes: 1})

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	if err := b.Execute(fail); !errors.Is(err, errDown) {
		t.Fatalf("expected call error, got %v", err)
	}
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after first failure, got %s", state)
	}

	_ = b.Execute(fail)
	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected open after threshold failures, got %s", state)
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("expected open circuit to skip the call, got err=%v called=%t", err, called)
	}

	now = now.Add(6 * time.Second)
	if state := b.State(); state != CircuitStateHalfOpen {
		t.Fatalf("expected half-open state, got %s", state)
	}
	if err := b.Execute(succeed); err != nil {
		t.Fatalf("expected trial call to pass, got %v", err)
	}
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after successful trial, got %s", state)
	}
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Second, HalfOpenProbes: 1})

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	_ = b.Execute(fail)
	now = now.Add(2 * time.Second)
	_ = b.Execute(fail)

	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected open after failed trial, got %s", state)
	}
}

func TestCircuitBreaker_LimitsConcurrentTrials(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Second, HalfOpenProbes: 1})

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	_ = b.Execute(fail)
	now = now.Add(2 * time.Second)

	err := b.Execute(func() error {
		if err := b.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("expected second trial to be rejected, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected trial error: %v", err)
	}
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after trial, got %s", state)
	}
}

func TestCircuitBreaker_DropsOutcomeFromEarlierState(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Minute, HalfOpenProbes: 1})

	err := b.Execute(func() error {
		_ = b.Execute(fail)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("late success must not close the breaker, got %s", state)
	}
}

func TestBreakerConfig_Defaults(t *testing.T) {
	cfg := BreakerConfig{}.normalize()
	if cfg != DefaultBreakerConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}
