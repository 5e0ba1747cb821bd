// Package circuitbreaker guards the upstream completion call with a
// consecutive-failure breaker. There is no separate half-open state: once the
// open window elapses, the next call is itself the recovery probe. A probe
// failure re-opens the breaker immediately; a success resets the counter.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker state observable by callers.
type State int

const (
	// StateClosed allows calls through.
	StateClosed State = iota
	// StateOpen fails calls fast with ErrCircuitOpen.
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker refuses a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures the breaker.
type Config struct {
	// Threshold is the number of consecutive failures that trips the breaker.
	Threshold int
	// OpenDuration is how long calls fail fast after the last failure.
	OpenDuration time.Duration
	// OnStateChange is invoked after a transition, outside the breaker lock.
	OnStateChange func(from, to State)
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Threshold:    5,
		OpenDuration: 60 * time.Second,
	}
}

// CircuitBreaker tracks consecutive upstream failures. One instance is shared
// per service process, never per session.
type CircuitBreaker struct {
	config *Config
	logger *zap.Logger
	now    func() time.Time

	mu              sync.Mutex
	failureCount    int
	lastFailureTime time.Time
}

// New creates a circuit breaker.
func New(config *Config, logger *zap.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = 60 * time.Second
	}
	return &CircuitBreaker{
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. It returns ErrCircuitOpen while
// the breaker is open and the cooldown has not elapsed. Once the cooldown
// elapses, the call is admitted as the probe without resetting the counter.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openLocked() {
		return ErrCircuitOpen
	}
	return nil
}

// RecordSuccess resets the failure counter. This is the only way the counter
// goes down; it never decrements partially.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	wasOpen := b.failureCount >= b.config.Threshold
	b.failureCount = 0
	b.mu.Unlock()

	if wasOpen {
		b.logger.Info("circuit breaker recovered")
		b.notify(StateOpen, StateClosed)
	}
}

// RecordFailure increments the failure counter and stamps the failure time.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	wasTripped := b.failureCount >= b.config.Threshold
	b.failureCount++
	b.lastFailureTime = b.now()
	tripped := b.failureCount >= b.config.Threshold
	failures := b.failureCount
	b.mu.Unlock()

	if tripped && !wasTripped {
		b.logger.Warn("circuit breaker opened",
			zap.Int("failure_count", failures),
			zap.Int("threshold", b.config.Threshold),
		)
		b.notify(StateClosed, StateOpen)
	}
}

// State returns the current observable state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openLocked() {
		return StateOpen
	}
	return StateClosed
}

// Failures returns the current consecutive failure count.
func (b *CircuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Reset manually restores the breaker to closed.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	wasOpen := b.openLocked()
	b.failureCount = 0
	b.mu.Unlock()

	b.logger.Info("circuit breaker reset")
	if wasOpen {
		b.notify(StateOpen, StateClosed)
	}
}

func (b *CircuitBreaker) openLocked() bool {
	return b.failureCount >= b.config.Threshold &&
		b.now().Sub(b.lastFailureTime) < b.config.OpenDuration
}

func (b *CircuitBreaker) notify(from, to State) {
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
