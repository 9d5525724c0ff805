package ratelimit_test

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/shopgate/internal/ratelimit"
)

type clock struct {
	now time.Time
	mu  sync.Mutex
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAllowUpToBurst(t *testing.T) {
	t.Parallel()

	clk := newClock()
	l := ratelimit.NewClientLimiter(1, 3, time.Minute, ratelimit.WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		d := l.Allow("10.0.0.1")
		require.True(t, d.Allowed, "request %d", i)
		require.NoError(t, d.Err())
	}

	d := l.Allow("10.0.0.1")
	assert.False(t, d.Allowed)
	require.ErrorIs(t, d.Err(), ratelimit.ErrRateLimitExceeded)
	assert.InDelta(t, time.Second, d.RetryAfter, float64(10*time.Millisecond))
	assert.Equal(t, 1, d.RetryAfterSeconds())
}

func TestDeniedRequestDoesNotConsumeToken(t *testing.T) {
	t.Parallel()

	clk := newClock()
	l := ratelimit.NewClientLimiter(1, 1, time.Minute, ratelimit.WithClock(clk.Now))

	require.True(t, l.Allow("c").Allowed)
	for i := 0; i < 5; i++ {
		require.False(t, l.Allow("c").Allowed)
	}

	clk.Advance(time.Second)
	assert.True(t, l.Allow("c").Allowed)
}

func TestClientsAreIndependent(t *testing.T) {
	t.Parallel()

	clk := newClock()
	l := ratelimit.NewClientLimiter(1, 1, time.Minute, ratelimit.WithClock(clk.Now))

	assert.True(t, l.Allow("a").Allowed)
	assert.False(t, l.Allow("a").Allowed)
	assert.True(t, l.Allow("b").Allowed)
	assert.Equal(t, 2, l.Len())
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, ratelimit.Decision{}.RetryAfterSeconds())
	assert.Equal(t, 1, ratelimit.Decision{RetryAfter: 200 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 3, ratelimit.Decision{RetryAfter: 2100 * time.Millisecond}.RetryAfterSeconds())
}

func TestSweepForgetsIdleClients(t *testing.T) {
	t.Parallel()

	clk := newClock()
	l := ratelimit.NewClientLimiter(5, 5, time.Minute, ratelimit.WithClock(clk.Now))

	l.Allow("old")
	clk.Advance(45 * time.Second)
	l.Allow("recent")
	clk.Advance(30 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 0, l.Len())
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	l := ratelimit.NewClientLimiter(5, 5, 20*time.Millisecond)
	l.Allow("x")
	l.Start()
	l.Start()

	require.Eventually(t, func() bool { return l.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	l.Stop()
}

func TestConcurrentAllowNeverExceedsBurst(t *testing.T) {
	t.Parallel()

	clk := newClock()
	l := ratelimit.NewClientLimiter(1, 10, time.Minute, ratelimit.WithClock(clk.Now))

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestClientLimiter_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a frozen clock admits exactly burst requests", prop.ForAll(
		func(burst, attempts int) bool {
			clk := newClock()
			l := ratelimit.NewClientLimiter(1, burst, time.Minute, ratelimit.WithClock(clk.Now))
			allowed := 0
			for i := 0; i < attempts; i++ {
				if l.Allow("k").Allowed {
					allowed++
				}
			}
			return allowed == min(burst, attempts)
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 100),
	))

	properties.Property("denials always carry a positive retry hint", prop.ForAll(
		func(rps float64) bool {
			clk := newClock()
			l := ratelimit.NewClientLimiter(rps, 1, time.Minute, ratelimit.WithClock(clk.Now))
			l.Allow("k")
			d := l.Allow("k")
			return !d.Allowed && d.RetryAfter > 0 && d.RetryAfterSeconds() >= 1
		},
		gen.Float64Range(0.1, 100),
	))

	properties.TestingRun(t)
}
