package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/observability"
)

// ErrCircuitOpen is returned by Call while the breaker rejects requests
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Requests fail immediately
	StateHalfOpen                     // Probing whether the service recovered
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// CircuitBreaker stops calling a failing collaborator (model endpoint,
// codec sidecar) until it has had time to recover
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	logger       zerolog.Logger

	mu                sync.Mutex
	state             CircuitState
	failureCount      int
	halfOpenCount     int
	successCount      int
	lastFailTime      time.Time
	requestCount      int64
	failureCountTotal int64
}

// NewCircuitBreaker creates a closed breaker that opens after maxFailures
// consecutive failures and probes again after resetTimeout
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
		state:        StateClosed,
		logger:       observability.WithComponent("circuit_breaker").With().Str("service", name).Logger(),
	}
	observability.UpdateCircuitBreakerState(name, int(StateClosed))
	return cb
}

// Call runs fn unless the breaker is open. Cancellation of ctx is not
// counted as a failure of the collaborator.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
	}

	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		cb.release()
		return err
	}
	cb.RecordResult(err == nil)
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailTime) < cb.resetTimeout {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenCount = 1
		return true

	case StateHalfOpen:
		if cb.halfOpenCount < cb.halfOpenMax {
			cb.halfOpenCount++
			return true
		}
		return false
	}
	return false
}

// release returns a half-open probe slot without recording a result
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.halfOpenCount > 0 {
		cb.halfOpenCount--
	}
}

// RecordResult records the outcome of a request made outside Call
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++
	if success {
		cb.recordSuccess()
	} else {
		cb.recordFailure()
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenMax {
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCountTotal++
	cb.lastFailTime = time.Now()
	observability.IncrementCircuitBreakerFailures(cb.name)

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.maxFailures {
			cb.transition(StateOpen)
		}

	case StateHalfOpen:
		// Any failure while probing reopens the circuit
		cb.transition(StateOpen)
	}
}

// transition must be called with mu held
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.failureCount = 0
	cb.halfOpenCount = 0
	cb.successCount = 0
	observability.UpdateCircuitBreakerState(cb.name, int(to))
	if from != to {
		cb.logger.Info().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns request totals and the failure rate in percent
func (cb *CircuitBreaker) GetStats() (state CircuitState, requestCount, failureCount int64, failureRate float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state = cb.state
	requestCount = cb.requestCount
	failureCount = cb.failureCountTotal
	if requestCount > 0 {
		failureRate = float64(failureCount) / float64(requestCount) * 100.0
	}
	return
}

// HealthCheck reports an open breaker as unhealthy
func (cb *CircuitBreaker) HealthCheck(ctx context.Context) (bool, error) {
	if state := cb.GetState(); state == StateOpen {
		return false, fmt.Errorf("%s circuit is %s", cb.name, state)
	}
	return true, nil
}

// Reset closes the breaker and clears its statistics
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transition(StateClosed)
	cb.requestCount = 0
	cb.failureCountTotal = 0
}
