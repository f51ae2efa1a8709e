// Package circuitbreaker stops calling a failing dependency for a cool-down
// period, then lets a few probe calls decide whether it has recovered.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	// MaxRequests is the number of concurrent probes allowed while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counters periodically. Zero never
	// clears them.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	OnStateChange    func(name string, from, to State)
	Logger           *zap.Logger
}

// Counts are the outcomes seen in the current generation.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

type CircuitBreaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	inFlight   uint32
	expiry     time.Time
}

func NewCircuitBreaker(name string, cfg Config) *CircuitBreaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	cb := &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
	cb.reset(cb.now())
	return cb
}

// Execute runs fn unless the breaker is open. A context error from fn is not
// counted against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	generation, err := cb.acquire()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.release(generation, false)
			panic(r)
		}
	}()

	err = fn()

	switch {
	case err == nil:
		cb.release(generation, true)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		cb.forget(generation)
	default:
		cb.release(generation, false)
	}
	return err
}

func (cb *CircuitBreaker) acquire() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.current(cb.now())
	switch state {
	case StateOpen:
		return cb.generation, ErrCircuitOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.MaxRequests {
			return cb.generation, ErrTooManyRequests
		}
	}

	cb.counts.Requests++
	cb.inFlight++
	return cb.generation, nil
}

// forget drops an in-flight call without recording an outcome.
func (cb *CircuitBreaker) forget(generation uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if generation == cb.generation && cb.inFlight > 0 {
		cb.inFlight--
	}
}

func (cb *CircuitBreaker) release(generation uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	state := cb.current(now)
	if generation != cb.generation {
		return
	}
	if cb.inFlight > 0 {
		cb.inFlight--
	}

	if success {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed, now)
		}
		return
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0
	if state == StateHalfOpen || cb.counts.ConsecutiveFailures >= cb.cfg.FailureThreshold {
		cb.transition(StateOpen, now)
	}
}

// current advances time-based transitions and returns the resulting state.
func (cb *CircuitBreaker) current(now time.Time) State {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && now.After(cb.expiry) {
			cb.reset(now)
		}
	case StateOpen:
		if now.After(cb.expiry) {
			cb.transition(StateHalfOpen, now)
		}
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	if cb.state == to {
		return
	}

	from := cb.state
	failures := cb.counts.ConsecutiveFailures
	cb.state = to
	cb.reset(now)

	cb.cfg.Logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Uint32("consecutive_failures", failures),
	)

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}

// reset starts a new generation for the current state.
func (cb *CircuitBreaker) reset(now time.Time) {
	cb.generation++
	cb.counts = Counts{}
	cb.inFlight = 0

	switch cb.state {
	case StateClosed:
		cb.expiry = time.Time{}
		if cb.cfg.Interval > 0 {
			cb.expiry = now.Add(cb.cfg.Interval)
		}
	case StateOpen:
		cb.expiry = now.Add(cb.cfg.Timeout)
	default:
		cb.expiry = time.Time{}
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.current(cb.now())
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}
