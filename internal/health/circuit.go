package health

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// State represents the circuit breaker state.
type State = gobreaker.State

// Circuit breaker state constants.
const (
	StateClosed   = gobreaker.StateClosed
	StateOpen     = gobreaker.StateOpen
	StateHalfOpen = gobreaker.StateHalfOpen
)

// minRetryAfter is the smallest Retry-After hint handed to clients.
const minRetryAfter = time.Second

// StateName returns the upper-case name used in operator responses.
func StateName(s State) string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Snapshot is a point-in-time view of one breaker.
type Snapshot struct {
	OpenedAt            time.Time
	Service             string
	State               State
	RecoveryTimeout     time.Duration
	FailureThreshold    int
	ConsecutiveFailures uint32
}

// CircuitBreaker wraps sony/gobreaker TwoStepCircuitBreaker for one backend service.
// At most one request is admitted while half-open.
type CircuitBreaker struct {
	openedAt  time.Time
	cb        *gobreaker.TwoStepCircuitBreaker[struct{}]
	name      string
	recovery  time.Duration
	threshold int
	mu        sync.Mutex
}

// NewCircuitBreaker creates a new CircuitBreaker with the given configuration.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger *zerolog.Logger) *CircuitBreaker {
	return newCircuitBreaker(name, cfg.GetFailureThreshold(), cfg.GetRecoveryTimeout(), logger)
}

func newCircuitBreaker(name string, threshold int, recovery time.Duration, logger *zerolog.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if recovery <= 0 {
		recovery = time.Duration(DefaultRecoveryTimeoutMS) * time.Millisecond
	}

	c := &CircuitBreaker{
		name:      name,
		threshold: threshold,
		recovery:  recovery,
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     recovery,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) //nolint:gosec // validated positive above
		},
		// Runs under gobreaker's own lock, so it must not call back into c.cb.
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.mu.Lock()
			switch to {
			case gobreaker.StateOpen:
				c.openedAt = time.Now()
			case gobreaker.StateClosed:
				c.openedAt = time.Time{}
			}
			c.mu.Unlock()

			if logger == nil {
				return
			}
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.
				Str("service", name).
				Str("from", StateName(from)).
				Str("to", StateName(to)).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		IsExcluded: isExcludedError,
	}

	c.cb = gobreaker.NewTwoStepCircuitBreaker[struct{}](settings)
	return c
}

// Allow asks the breaker to admit one request. On success the returned
// function must be called exactly once with the request's outcome; extra
// calls are ignored. On rejection the error is a *CircuitOpenError.
func (c *CircuitBreaker) Allow() (done func(Outcome), err error) {
	d, err := c.cb.Allow()
	if err != nil {
		return nil, &CircuitOpenError{
			Service:    c.name,
			RetryAfter: c.RetryAfter(),
			HalfOpen:   errors.Is(err, gobreaker.ErrTooManyRequests),
		}
	}

	var once sync.Once
	return func(o Outcome) {
		once.Do(func() { d(outcomeToError(o)) })
	}, nil
}

// State returns the current circuit breaker state.
func (c *CircuitBreaker) State() State {
	return c.cb.State()
}

// Name returns the service the breaker guards.
func (c *CircuitBreaker) Name() string {
	return c.name
}

// RetryAfter returns how long a rejected client should wait before retrying.
func (c *CircuitBreaker) RetryAfter() time.Duration {
	if c.cb.State() != StateOpen {
		return minRetryAfter
	}

	c.mu.Lock()
	opened := c.openedAt
	c.mu.Unlock()

	remaining := c.recovery - time.Since(opened)
	if remaining < minRetryAfter {
		return minRetryAfter
	}
	return remaining
}

// Snapshot returns the breaker's current state and counters.
func (c *CircuitBreaker) Snapshot() Snapshot {
	state := c.cb.State()
	counts := c.cb.Counts()

	c.mu.Lock()
	opened := c.openedAt
	c.mu.Unlock()

	return Snapshot{
		Service:             c.name,
		State:               state,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		OpenedAt:            opened,
		FailureThreshold:    c.threshold,
		RecoveryTimeout:     c.recovery,
	}
}
