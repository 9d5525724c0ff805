package health

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/omarluq/shopgate/internal/registry"
)

// Tracker owns one circuit breaker per registered service.
// Breakers are created up front, so the map is read-only afterwards.
type Tracker struct {
	circuits map[string]*CircuitBreaker
	logger   *zerolog.Logger
	order    []string
}

// NewTracker creates a breaker for every descriptor. Descriptor values of
// zero fall back to defaults.
func NewTracker(
	descriptors []*registry.ServiceDescriptor,
	defaults CircuitBreakerConfig,
	logger *zerolog.Logger,
) *Tracker {
	t := &Tracker{
		circuits: make(map[string]*CircuitBreaker, len(descriptors)),
		order:    make([]string, 0, len(descriptors)),
		logger:   logger,
	}

	for _, d := range descriptors {
		threshold := d.FailureThreshold
		if threshold <= 0 {
			threshold = defaults.GetFailureThreshold()
		}
		recovery := d.RecoveryTimeout
		if recovery <= 0 {
			recovery = defaults.GetRecoveryTimeout()
		}

		t.circuits[d.Name] = newCircuitBreaker(d.Name, threshold, recovery, logger)
		t.order = append(t.order, d.Name)

		if logger != nil {
			logger.Debug().
				Str("service", d.Name).
				Int("failure_threshold", threshold).
				Dur("recovery_timeout", recovery).
				Msg("created circuit breaker")
		}
	}

	return t
}

// Breaker returns the circuit breaker for a service.
func (t *Tracker) Breaker(service string) (*CircuitBreaker, error) {
	cb, ok := t.circuits[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return cb, nil
}

// GetState returns the current state of a service's breaker.
// Returns StateClosed for unknown services.
func (t *Tracker) GetState(service string) State {
	cb, ok := t.circuits[service]
	if !ok {
		return StateClosed
	}
	return cb.State()
}

// AllStates returns a snapshot of all breaker states.
func (t *Tracker) AllStates() map[string]State {
	return lo.MapValues(t.circuits, func(cb *CircuitBreaker, _ string) State {
		return cb.State()
	})
}

// Snapshots returns breaker snapshots in registration order.
func (t *Tracker) Snapshots() []Snapshot {
	return lo.Map(t.order, func(name string, _ int) Snapshot {
		return t.circuits[name].Snapshot()
	})
}
