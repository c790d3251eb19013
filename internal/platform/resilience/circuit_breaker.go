package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"
	CircuitStateOpen     CircuitState = "open"
	CircuitStateHalfOpen CircuitState = "half_open"
)

// CircuitBreaker stops calling a dependency after repeated failures and
// lets a limited number of trial calls through once the open timeout passes.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg BreakerConfig
	now func() time.Time

	state    CircuitState
	epoch    uint64
	failures int
	openedAt time.Time
	trials   int
	passed   int
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:   cfg.normalize(),
		now:   time.Now,
		state: CircuitStateClosed,
	}
}

// Execute runs fn unless the breaker is open and records its outcome.
// Outcomes of calls that started before the last state change are dropped.
func (b *CircuitBreaker) Execute(fn func() error) error {
	epoch, err := b.enter()
	if err != nil {
		return err
	}

	err = fn()
	b.exit(epoch, err == nil)
	return err
}

func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitStateOpen && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		return CircuitStateHalfOpen
	}
	return b.state
}

func (b *CircuitBreaker) enter() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitStateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return 0, ErrCircuitOpen
		}
		b.transition(CircuitStateHalfOpen)
		fallthrough
	case CircuitStateHalfOpen:
		if b.trials >= b.cfg.HalfOpenProbes {
			return 0, ErrCircuitOpen
		}
		b.trials++
	}
	return b.epoch, nil
}

func (b *CircuitBreaker) exit(epoch uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if epoch != b.epoch {
		return
	}

	switch b.state {
	case CircuitStateClosed:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(CircuitStateOpen)
		}
	case CircuitStateHalfOpen:
		b.trials--
		if !ok {
			b.transition(CircuitStateOpen)
			return
		}
		b.passed++
		if b.passed >= b.cfg.HalfOpenProbes && b.trials == 0 {
			b.transition(CircuitStateClosed)
		}
	}
}

// transition moves to state and resets the per-state counters.
func (b *CircuitBreaker) transition(state CircuitState) {
	b.state = state
	b.epoch++
	b.failures = 0
	b.trials = 0
	b.passed = 0
	b.openedAt = time.Time{}
	if state == CircuitStateOpen {
		b.openedAt = b.now()
	}
}
