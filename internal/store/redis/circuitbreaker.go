package redis

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // writes pass through
	StateOpen     State = 1 // writes rejected immediately
	StateHalfOpen State = 2 // one probe write allowed
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

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("redis: circuit breaker is open")

// CircuitBreaker stops hammering an unreachable Redis.
// After maxFailures consecutive failures the breaker opens and rejects calls
// for resetTimeout. It then lets one probe through: success closes it,
// failure reopens it.
type CircuitBreaker struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time

	// OnStateChange is called on every transition with the lock held.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker. A nil clock uses wall time.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, clock clockwork.Clock) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CircuitBreaker{
		clock:        clock,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.clock.Since(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = cb.clock.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return err
	}

	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	return nil
}

// CurrentState returns the current state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
