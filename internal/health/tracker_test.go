package health_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/shopgate/internal/health"
)

func TestTrackerCreatesBreakerPerService(t *testing.T) {
	t.Parallel()

	services := testServices(t, "auth-service", "product-service")
	services[1].FailureThreshold = 3
	services[1].RecoveryTimeout = 10 * time.Second

	tracker := health.NewTracker(services, health.CircuitBreakerConfig{FailureThreshold: 7}, nil)

	auth, err := tracker.Breaker("auth-service")
	require.NoError(t, err)
	assert.Equal(t, 7, auth.Snapshot().FailureThreshold)
	assert.Equal(t, 30*time.Second, auth.Snapshot().RecoveryTimeout)

	product, err := tracker.Breaker("product-service")
	require.NoError(t, err)
	assert.Equal(t, 3, product.Snapshot().FailureThreshold)
	assert.Equal(t, 10*time.Second, product.Snapshot().RecoveryTimeout)

	_, err = tracker.Breaker("missing")
	require.ErrorIs(t, err, health.ErrUnknownService)
}

func TestTrackerBreakersAreIndependent(t *testing.T) {
	t.Parallel()

	services := testServices(t, "auth-service", "product-service")
	services[1].FailureThreshold = 1

	tracker := health.NewTracker(services, health.CircuitBreakerConfig{}, nil)

	product, err := tracker.Breaker("product-service")
	require.NoError(t, err)
	done, err := product.Allow()
	require.NoError(t, err)
	done(health.OutcomeServerError)

	assert.Equal(t, health.StateOpen, tracker.GetState("product-service"))
	assert.Equal(t, health.StateClosed, tracker.GetState("auth-service"))
	assert.Equal(t, health.StateClosed, tracker.GetState("missing"))

	states := tracker.AllStates()
	assert.Len(t, states, 2)
	assert.Equal(t, health.StateOpen, states["product-service"])

	snaps := tracker.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "auth-service", snaps[0].Service)
	assert.Equal(t, health.StateOpen, snaps[1].State)
}
