// Package ratelimit throttles inbound traffic per client before it reaches
// any backend.
//
// Each client IP gets its own token bucket from golang.org/x/time/rate.
// Buckets of clients that have gone quiet are swept periodically so the map
// does not grow with every address ever seen.
//
// Basic usage:
//
//	limiter := ratelimit.NewClientLimiter(10, 20, 5*time.Minute)
//	limiter.Start()
//	defer limiter.Stop()
//
//	if d := limiter.Allow(clientIP); !d.Allowed {
//		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
//	}
package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned when a client has used up its bucket.
var ErrRateLimitExceeded = errors.New("ratelimit: rate limit exceeded")

// Decision is the result of one Allow call.
type Decision struct {
	// RetryAfter is how long the client should wait before its next token.
	// Zero when Allowed.
	RetryAfter time.Duration
	Allowed    bool
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Err returns ErrRateLimitExceeded for a denied decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrRateLimitExceeded
}

type client struct {
	lastSeen time.Time
	limiter  *rate.Limiter
}

// ClientLimiter keeps one token bucket per client key.
//
// Thread safety: all methods are safe for concurrent use.
type ClientLimiter struct {
	ctx     context.Context
	clients map[string]*client
	now     func() time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	mu      sync.Mutex
	active  bool
}

// Option configures a ClientLimiter.
type Option func(*ClientLimiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *ClientLimiter) {
		l.now = now
	}
}

// NewClientLimiter creates a limiter refilling rps tokens per second up to
// burst. A burst below 1 is raised to 1. Clients idle for idleTTL are
// forgotten by the sweeper.
func NewClientLimiter(rps float64, burst int, idleTTL time.Duration, opts ...Option) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &ClientLimiter{
		clients: make(map[string]*client),
		now:     time.Now,
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow takes one token from key's bucket without blocking.
func (l *ClientLimiter) Allow(key string) Decision {
	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	if c.limiter.AllowN(now, 1) {
		return Decision{Allowed: true}
	}
	if l.limit <= 0 {
		return Decision{RetryAfter: l.idleTTL}
	}
	missing := 1 - c.limiter.TokensAt(now)
	return Decision{RetryAfter: time.Duration(missing / float64(l.limit) * float64(time.Second))}
}

// Len returns the number of tracked clients.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Sweep forgets clients not seen within the idle TTL and returns how many
// were removed.
func (l *ClientLimiter) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Start sweeps idle clients every idle TTL until Stop is called.
// Calling Start more than once is a no-op.
func (l *ClientLimiter) Start() {
	l.mu.Lock()
	if l.active {
		l.mu.Unlock()
		return
	}
	l.active = true
	l.mu.Unlock()

	ticker := time.NewTicker(l.idleTTL)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-l.ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit.
func (l *ClientLimiter) Stop() {
	l.cancel()
	l.wg.Wait()
}
