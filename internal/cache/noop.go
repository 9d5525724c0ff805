package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// noopCache stores nothing. Writes succeed and every read is a miss.
type noopCache struct {
	closed atomic.Bool
}

var (
	_ Cache         = (*noopCache)(nil)
	_ StatsProvider = (*noopCache)(nil)
)

func newNoopCache() *noopCache {
	log := logger().With().Str("backend", "noop").Logger()
	log.Debug().Msg("token caching is disabled")
	return &noopCache{}
}

func (c *noopCache) check() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (c *noopCache) Get(_ context.Context, _ string) ([]byte, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

func (c *noopCache) Set(_ context.Context, _ string, _ []byte) error {
	return c.check()
}

func (c *noopCache) SetWithTTL(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return c.check()
}

func (c *noopCache) Delete(_ context.Context, _ string) error {
	return c.check()
}

func (c *noopCache) Exists(_ context.Context, _ string) (bool, error) {
	return false, c.check()
}

func (c *noopCache) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *noopCache) Stats() Stats {
	return Stats{}
}
