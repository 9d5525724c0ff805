package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"
)

// ristrettoCache implements Cache on top of Ristretto. Writes are buffered
// by Ristretto, so a Get immediately after Set may miss; callers treat a
// miss as "verify again".
type ristrettoCache struct {
	cache  *ristretto.Cache[string, []byte]
	log    zerolog.Logger
	closed atomic.Bool
	mu     sync.RWMutex
}

var (
	_ Cache         = (*ristrettoCache)(nil)
	_ StatsProvider = (*ristrettoCache)(nil)
)

func newRistrettoCache(cfg RistrettoConfig) (*ristrettoCache, error) {
	log := logger().With().Str("backend", "ristretto").Logger()

	bufferItems := cfg.BufferItems
	if bufferItems <= 0 {
		bufferItems = 64
	}

	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: bufferItems,
		Metrics:     true,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create ristretto cache")
		return nil, err
	}

	log.Info().
		Int64("num_counters", cfg.NumCounters).
		Int64("max_cost", cfg.MaxCost).
		Msg("ristretto cache created")

	return &ristrettoCache{cache: rc, log: log}, nil
}

// guard runs fn under the read lock unless ctx is done or the cache is closed.
func (r *ristrettoCache) guard(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() {
		return ErrClosed
	}
	fn()
	return nil
}

func (r *ristrettoCache) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value []byte
		found bool
	)
	if err := r.guard(ctx, func() { value, found = r.cache.Get(key) }); err != nil {
		return nil, err
	}

	r.log.Debug().Str("key", key).Bool("hit", found).Msg("cache get")
	if !found {
		return nil, ErrNotFound
	}
	return clone(value), nil
}

func (r *ristrettoCache) Set(ctx context.Context, key string, value []byte) error {
	return r.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores a copy of value. A ttl of zero never expires.
func (r *ristrettoCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := clone(value)
	err := r.guard(ctx, func() {
		r.cache.SetWithTTL(key, stored, int64(len(stored)), ttl)
	})
	if err != nil {
		return err
	}

	r.log.Debug().
		Str("key", key).
		Int("size", len(stored)).
		Dur("ttl", ttl).
		Msg("cache set")
	return nil
}

func (r *ristrettoCache) Delete(ctx context.Context, key string) error {
	return r.guard(ctx, func() { r.cache.Del(key) })
}

func (r *ristrettoCache) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := r.guard(ctx, func() { _, found = r.cache.Get(key) })
	return found, err
}

// Close flushes pending writes and releases Ristretto's goroutines.
func (r *ristrettoCache) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Swap(true) {
		return nil
	}

	r.cache.Wait()
	r.cache.Close()
	r.log.Info().Msg("ristretto cache closed")
	return nil
}

// Stats returns zeroed statistics once the cache is closed.
func (r *ristrettoCache) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		return Stats{}
	}

	m := r.cache.Metrics
	return Stats{
		Hits:      m.Hits(),
		Misses:    m.Misses(),
		KeyCount:  m.KeysAdded() - m.KeysEvicted(),
		BytesUsed: m.CostAdded() - m.CostEvicted(),
		Evictions: m.KeysEvicted(),
	}
}

// wait blocks until buffered writes are applied.
func (r *ristrettoCache) wait() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.closed.Load() {
		r.cache.Wait()
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
