package health_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/shopgate/internal/health"
)

func tripBreaker(t *testing.T, breaker *health.CircuitBreaker, n int, outcome health.Outcome) {
	t.Helper()
	for i := 0; i < n; i++ {
		done, err := breaker.Allow()
		require.NoError(t, err, "iteration %d", i)
		done(outcome)
	}
}

func waitForHalfOpen(t *testing.T, breaker *health.CircuitBreaker) {
	t.Helper()
	require.Eventually(t, func() bool {
		return breaker.State() == health.StateHalfOpen
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNewCircuitBreakerDefaultSettings(t *testing.T) {
	t.Parallel()

	breaker := health.NewCircuitBreaker("user-service", health.CircuitBreakerConfig{}, nil)

	assert.Equal(t, "user-service", breaker.Name())
	assert.Equal(t, health.StateClosed, breaker.State())

	snap := breaker.Snapshot()
	assert.Equal(t, health.DefaultFailureThreshold, snap.FailureThreshold)
	assert.Equal(t, 30*time.Second, snap.RecoveryTimeout)
	assert.True(t, snap.OpenedAt.IsZero())
}

func TestCircuitBreakerOpensAfterThresholdFailures(t *testing.T) {
	t.Parallel()

	breaker := health.NewTestBreaker(3, time.Minute)
	tripBreaker(t, breaker, 3, health.OutcomeServerError)

	assert.Equal(t, health.StateOpen, breaker.State())
	assert.False(t, breaker.Snapshot().OpenedAt.IsZero())

	done, err := breaker.Allow()
	assert.Nil(t, done)
	require.ErrorIs(t, err, health.ErrCircuitOpen)

	var openErr *health.CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "test-service", openErr.Service)
	assert.False(t, openErr.HalfOpen)
	assert.Greater(t, openErr.RetryAfter, 50*time.Second)
	assert.LessOrEqual(t, openErr.RetryAfter, time.Minute)
}

func TestCircuitBreakerStaysClosedBelowThreshold(t *testing.T) {
	t.Parallel()

	breaker := health.NewTestBreaker(3, time.Minute)
	tripBreaker(t, breaker, 2, health.OutcomeTimeout)

	assert.Equal(t, health.StateClosed, breaker.State())
	assert.Equal(t, uint32(2), breaker.Snapshot().ConsecutiveFailures)
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	t.Parallel()

	breaker := health.NewTestBreaker(3, time.Minute)
	tripBreaker(t, breaker, 2, health.OutcomeNetworkError)
	tripBreaker(t, breaker, 1, health.OutcomeSuccess)
	tripBreaker(t, breaker, 2, health.OutcomeNetworkError)

	assert.Equal(t, health.StateClosed, breaker.State())
	assert.Equal(t, uint32(2), breaker.Snapshot().ConsecutiveFailures)
}

func TestCircuitBreakerClientErrorsAreNeutral(t *testing.T) {
	t.Parallel()

	breaker := health.NewTestBreaker(3, time.Minute)
	tripBreaker(t, breaker, 2, health.OutcomeServerError)
	tripBreaker(t, breaker, 5, health.OutcomeClientError)

	assert.Equal(t, health.StateClosed, breaker.State())
	assert.Equal(t, uint32(2), breaker.Snapshot().ConsecutiveFailures)

	tripBreaker(t, breaker, 1, health.OutcomeServerError)
	assert.Equal(t, health.StateOpen, breaker.State())
}

func TestCircuitBreakerHalfOpenAdmitsExactlyOne(t *testing.T) {
	t.Parallel()

	breaker := health.NewTestBreaker(1, 50*time.Millisecond)
	tripBreaker(t, breaker, 1, health.OutcomeTimeout)
	waitForHalfOpen(t, breaker)

	probe, err := breaker.Allow()
	require.NoError(t, err)

	_, err = breaker.Allow()
	var openErr *health.CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.True(t, openErr.HalfOpen)
	assert.Equal(t, time.Second, openErr.RetryAfter)

	probe(health.OutcomeSuccess)
	assert.Equal(t, health.StateClosed, breaker.State())
	assert.True(t, breaker.Snapshot().OpenedAt.IsZero())

	next, err := breaker.Allow()
	require.NoError(t, err)
	next(health.OutcomeSuccess)
}

func TestCircuitBreakerHalfOpenConcurrentAdmission(t *testing.T) {
	t.Parallel()

	breaker := health.NewTestBreaker(1, 50*time.Millisecond)
	tripBreaker(t, breaker, 1, health.OutcomeServerError)
	waitForHalfOpen(t, breaker)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	dones := make(chan func(health.Outcome), 32)

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done, err := breaker.Allow()
			if err == nil {
				admitted.Add(1)
				dones <- done
			}
		}()
	}
	wg.Wait()
	close(dones)

	assert.Equal(t, int32(1), admitted.Load())
	for done := range dones {
		done(health.OutcomeSuccess)
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	breaker := health.NewTestBreaker(1, 50*time.Millisecond)
	tripBreaker(t, breaker, 1, health.OutcomeServerError)
	firstOpened := breaker.Snapshot().OpenedAt
	waitForHalfOpen(t, breaker)

	probe, err := breaker.Allow()
	require.NoError(t, err)
	probe(health.OutcomeNetworkError)

	assert.Equal(t, health.StateOpen, breaker.State())
	assert.True(t, breaker.Snapshot().OpenedAt.After(firstOpened))
}

func TestCircuitBreakerHalfOpenClientErrorFreesSlot(t *testing.T) {
	t.Parallel()

	breaker := health.NewTestBreaker(1, 50*time.Millisecond)
	tripBreaker(t, breaker, 1, health.OutcomeServerError)
	waitForHalfOpen(t, breaker)

	probe, err := breaker.Allow()
	require.NoError(t, err)
	probe(health.OutcomeClientError)

	assert.Equal(t, health.StateHalfOpen, breaker.State())

	probe, err = breaker.Allow()
	require.NoError(t, err)
	probe(health.OutcomeSuccess)
	assert.Equal(t, health.StateClosed, breaker.State())
}

func TestCircuitBreakerDoneIsIdempotent(t *testing.T) {
	t.Parallel()

	breaker := health.NewTestBreaker(2, time.Minute)

	done, err := breaker.Allow()
	require.NoError(t, err)
	done(health.OutcomeServerError)
	done(health.OutcomeServerError)

	assert.Equal(t, health.StateClosed, breaker.State())
	assert.Equal(t, uint32(1), breaker.Snapshot().ConsecutiveFailures)
}

// Three timeouts open the circuit; after the recovery window one probing
// request is admitted and its success closes the circuit again.
func TestCircuitBreakerProductServiceScenario(t *testing.T) {
	t.Parallel()

	recovery := 100 * time.Millisecond
	breaker := health.NewCircuitBreaker("product-service", health.CircuitBreakerConfig{
		FailureThreshold:  3,
		RecoveryTimeoutMS: int(recovery / time.Millisecond),
	}, nil)

	tripBreaker(t, breaker, 3, health.OutcomeTimeout)

	_, err := breaker.Allow()
	require.True(t, errors.Is(err, health.ErrCircuitOpen))

	time.Sleep(recovery + 20*time.Millisecond)

	probe, err := breaker.Allow()
	require.NoError(t, err)
	probe(health.OutcomeSuccess)
	require.Equal(t, health.StateClosed, breaker.State())

	time.Sleep(time.Millisecond)
	next, err := breaker.Allow()
	require.NoError(t, err)
	next(health.OutcomeSuccess)
}

func TestRetryAfterHasFloor(t *testing.T) {
	t.Parallel()

	breaker := health.NewTestBreaker(1, 200*time.Millisecond)
	assert.Equal(t, time.Second, breaker.RetryAfter())

	tripBreaker(t, breaker, 1, health.OutcomeServerError)
	assert.Equal(t, time.Second, breaker.RetryAfter())
}

func TestStateName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CLOSED", health.StateName(health.StateClosed))
	assert.Equal(t, "OPEN", health.StateName(health.StateOpen))
	assert.Equal(t, "HALF_OPEN", health.StateName(health.StateHalfOpen))
}
