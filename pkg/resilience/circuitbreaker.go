package resilience

import (
	"errors"
	"sync"
	"time"

	"creditchat/backend/pkg/logger"
)

// ErrCircuitOpen is returned when the breaker short-circuits a request.
var ErrCircuitOpen = errors.New("circuit open")

// State of a circuit breaker
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds circuit breaker thresholds
type Config struct {
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	RetryTimeout     time.Duration
}

// DefaultConfig returns thresholds suitable for an upstream HTTP dependency
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RetryTimeout:     30 * time.Second,
	}
}

// CircuitBreaker guards calls to a flaky dependency. After
// FailureThreshold consecutive failures it opens and fails fast; after
// RetryTimeout it lets probe requests through, closing again once
// SuccessThreshold of them succeed.
type CircuitBreaker struct {
	cfg Config
	log *logger.Logger

	mu              sync.Mutex
	state           State
	failureCount    uint
	successCount    uint
	nextAttemptTime time.Time
}

// New creates a circuit breaker in the closed state
func New(cfg Config, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, log: log, state: StateClosed}
}

// Execute runs fn through the breaker
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		cb.log.Warn("Circuit breaker rejecting request", "name", cb.cfg.Name)
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil {
		cb.recordFailure(err)
		return err
	}
	cb.recordSuccess()
	return nil
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Now().After(cb.nextAttemptTime) {
			cb.state = StateHalfOpen
			cb.successCount = 0
			return true
		}
		return false
	case StateHalfOpen:
		return cb.successCount < cb.cfg.SuccessThreshold
	}
	return false
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.log.Info("Circuit breaker closed", "name", cb.cfg.Name)
		}
	}
}

func (cb *CircuitBreaker) recordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.open()
		}
	case StateHalfOpen:
		cb.open()
	}
	cb.log.Warn("Circuit breaker recorded failure", "name", cb.cfg.Name, "error", err.Error())
}

func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.failureCount = 0
	cb.nextAttemptTime = time.Now().Add(cb.cfg.RetryTimeout)
	cb.log.Warn("Circuit breaker opened", "name", cb.cfg.Name, "retry_after", cb.cfg.RetryTimeout.String())
}
