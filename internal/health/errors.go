package health

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for health tracking.
var (
	// ErrCircuitOpen is matched by every CircuitOpenError via errors.Is.
	ErrCircuitOpen = errors.New("health: circuit breaker is open")

	// ErrHealthCheckFailed wraps probe failures.
	ErrHealthCheckFailed = errors.New("health: health check failed")

	// ErrUnknownService is returned for services the tracker or cache was not built with.
	ErrUnknownService = errors.New("health: unknown service")
)

// CircuitOpenError is returned when a breaker refuses to admit a request.
type CircuitOpenError struct {
	Service    string
	RetryAfter time.Duration
	// HalfOpen is set when the rejection came from an occupied half-open probe slot.
	HalfOpen bool
}

func (e *CircuitOpenError) Error() string {
	if e.HalfOpen {
		return fmt.Sprintf("health: circuit for %s is half-open and probing", e.Service)
	}
	return fmt.Sprintf("health: circuit for %s is open, retry after %s", e.Service, e.RetryAfter)
}

// Is makes errors.Is(err, ErrCircuitOpen) true.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}
