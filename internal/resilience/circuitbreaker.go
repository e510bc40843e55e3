// Package resilience guards storage calls that may fail transiently.
//
// [CircuitBreaker] stops hammering a backend that keeps failing, and [Retry]
// repeats an operation with exponential backoff until it succeeds, fails
// permanently, or runs out of attempts.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through. Enough
	// successes close the breaker; any failure opens it again.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels log messages and state change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of trial calls allowed, and successes
	// required, in the half-open state. Default: 1.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. Context
	// cancellation and [Permanent] errors never count, whatever IsFailure
	// says. Default: every other non-nil error counts.
	IsFailure func(error) bool

	// OnStateChange is called, without the breaker lock held, after every
	// transition.
	OnStateChange func(name string, from, to State)

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	trials       int
	trialSuccess int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn if the breaker allows it and records the outcome. The
// error returned by fn is passed through unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trial, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(trial, cb.counts(err))
	return err
}

// admit decides whether a call may proceed and whether it is a trial.
func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	var from State
	changed := false
	switch cb.state {
	case StateOpen:
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		from, changed = cb.state, true
		cb.state = StateHalfOpen
		cb.trials, cb.trialSuccess = 0, 0
		fallthrough
	case StateHalfOpen:
		if cb.trials >= cb.cfg.HalfOpenMax {
			cb.mu.Unlock()
			cb.notify(changed, from, StateHalfOpen)
			return false, ErrCircuitOpen
		}
		cb.trials++
		trial = true
	}
	cb.mu.Unlock()
	cb.notify(changed, from, StateHalfOpen)
	return trial, nil
}

// record applies the outcome of an admitted call. failed is false for
// successes and for errors that do not count.
func (cb *CircuitBreaker) record(trial, failed bool) {
	cb.mu.Lock()
	from := cb.state
	switch {
	case failed && (trial || cb.state == StateHalfOpen):
		cb.open()
	case failed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.open()
		}
	case trial && cb.state == StateHalfOpen:
		cb.trialSuccess++
		if cb.trialSuccess >= cb.cfg.HalfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
		}
	case cb.state == StateClosed:
		cb.failures = 0
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from != to, from, to)
}

// open must be called with cb.mu held.
func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.openedAt = cb.cfg.Now()
	cb.failures = cb.cfg.MaxFailures
}

func (cb *CircuitBreaker) counts(err error) bool {
	if err == nil || IsPermanent(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if cb.cfg.IsFailure != nil {
		return cb.cfg.IsFailure(err)
	}
	return true
}

func (cb *CircuitBreaker) notify(changed bool, from, to State) {
	if !changed {
		return
	}
	log := slog.Info
	if to == StateOpen {
		log = slog.Warn
	}
	log("circuit breaker state change", "name", cb.cfg.Name, "from", from, "to", to)
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current [State]. An open breaker whose reset timeout
// has elapsed reports [StateHalfOpen]; the transition itself happens on the
// next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures, cb.trials, cb.trialSuccess = 0, 0, 0
	cb.mu.Unlock()
	cb.notify(from != StateClosed, from, StateClosed)
}
