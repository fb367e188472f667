// Package circuitbreaker guards calls to flaky downstream services
// (detection engines, text-generation endpoints) and the service's own handlers.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen allows trial requests through to probe whether the downstream has recovered.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker is the interface for the circuit breaker pattern.
type CircuitBreaker interface {
	// Execute runs fn unless the circuit is open. A non-nil error from fn counts as a failure.
	Execute(fn func() error) error
	// State returns the current state of the circuit breaker.
	State() State
}

// Settings configures a breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32
	// SuccessThreshold is the number of consecutive half-open successes that closes it again.
	SuccessThreshold uint32
	// Timeout is how long the circuit stays open before allowing a trial request.
	Timeout time.Duration
	// OnStateChange, if set, is called after every transition. It runs with the lock released.
	OnStateChange func(from, to State)
}

type breaker struct {
	settings             Settings
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
	openedAt             time.Time
	state                State
	now                  func() time.Time
	mutex                sync.Mutex
}

// New creates a breaker. Zero thresholds are treated as 1.
func New(s Settings) CircuitBreaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 1
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = 1
	}
	return &breaker{settings: s, state: Closed, now: time.Now}
}

// State returns the current state, promoting Open to HalfOpen once the timeout has elapsed.
func (cb *breaker) State() State {
	cb.mutex.Lock()
	from, to := cb.refresh()
	state := cb.state
	cb.mutex.Unlock()
	cb.notify(from, to)
	return state
}

// Execute wraps the execution of fn with the circuit breaker logic.
func (cb *breaker) Execute(fn func() error) error {
	cb.mutex.Lock()
	from, to := cb.refresh()
	if cb.state == Open {
		cb.mutex.Unlock()
		cb.notify(from, to)
		return ErrCircuitOpen
	}
	cb.mutex.Unlock()
	cb.notify(from, to)

	err := fn()

	cb.mutex.Lock()
	if err != nil {
		from, to = cb.onFailure()
	} else {
		from, to = cb.onSuccess()
	}
	cb.mutex.Unlock()
	cb.notify(from, to)
	return err
}

// refresh must be called with the lock held.
func (cb *breaker) refresh() (State, State) {
	if cb.state == Open && cb.now().Sub(cb.openedAt) > cb.settings.Timeout {
		cb.consecutiveSuccesses = 0
		return cb.setState(HalfOpen)
	}
	return cb.state, cb.state
}

func (cb *breaker) onSuccess() (State, State) {
	switch cb.state {
	case HalfOpen:
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.settings.SuccessThreshold {
			cb.consecutiveFailures = 0
			cb.consecutiveSuccesses = 0
			return cb.setState(Closed)
		}
	case Closed:
		cb.consecutiveFailures = 0
	}
	return cb.state, cb.state
}

func (cb *breaker) onFailure() (State, State) {
	switch cb.state {
	case HalfOpen:
		return cb.trip()
	case Closed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.settings.FailureThreshold {
			return cb.trip()
		}
	}
	return cb.state, cb.state
}

func (cb *breaker) trip() (State, State) {
	cb.openedAt = cb.now()
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	return cb.setState(Open)
}

func (cb *breaker) setState(to State) (State, State) {
	from := cb.state
	cb.state = to
	return from, to
}

func (cb *breaker) notify(from, to State) {
	if from != to && cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(from, to)
	}
}
