package health

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/ro"

	"github.com/omarluq/shopgate/internal/ratelimit"
	gwro "github.com/omarluq/shopgate/internal/ro"
)

// Checker refreshes stale or unhealthy status records in the background so
// a recovered service is noticed without waiting for live traffic.
type Checker struct {
	ctx    context.Context
	cache  *StatusCache
	logger *zerolog.Logger
	cancel context.CancelFunc
	config CheckConfig
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// NewChecker creates a new Checker. A nil logger discards output.
func NewChecker(cache *StatusCache, cfg CheckConfig, logger *zerolog.Logger) *Checker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Checker{
		cache:  cache,
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins periodic refreshing. Calling Start more than once is a no-op.
func (h *Checker) Start() {
	if !h.config.IsEnabled() {
		h.logger.Info().Msg("health checker disabled")
		return
	}

	h.mu.Lock()
	if h.active {
		h.mu.Unlock()
		return
	}
	h.active = true
	h.mu.Unlock()

	interval := h.config.GetInterval()
	// Jitter (0-2s) keeps several gateway replicas from probing in lockstep.
	jitter := cryptoRandDuration(2 * time.Second)
	ticker := time.NewTicker(interval + jitter)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer ticker.Stop()

		h.logger.Info().
			Dur("interval", interval).
			Dur("jitter", jitter).
			Msg("health checker started")

		for {
			select {
			case <-h.ctx.Done():
				h.logger.Info().Msg("health checker stopped")
				return
			case <-ticker.C:
				h.refreshAll()
			}
		}
	}()
}

// Stop stops the checker and waits for the goroutine to finish.
func (h *Checker) Stop() {
	h.cancel()
	h.wg.Wait()
}

// refreshAll probes every service whose record is stale or UNHEALTHY.
func (h *Checker) refreshAll() {
	stream := gwro.FilterStream(gwro.StreamFromSlice(h.cache.Services()), h.cache.NeedsRefresh)
	if limit := h.config.MaxRefreshesPerTick; limit > 0 {
		stream = ratelimit.LimitStream(stream, int64(limit), h.config.GetInterval())
	}
	due, err := gwro.Collect(ro.Pipe1(stream, gwro.LogEach[string](h.logger, "health-refresh")))
	if err != nil {
		h.logger.Warn().Err(err).Msg("health refresh selection failed")
		return
	}

	for _, name := range due {
		// A probe stuck past one interval must not hold up the rest of the sweep.
		ctx, cancel := context.WithTimeout(h.ctx, h.config.GetInterval())
		status, err := h.cache.Refresh(ctx, name)
		cancel()
		if err != nil {
			h.logger.Warn().Err(err).Str("service", name).Msg("background health refresh failed")
			continue
		}
		h.logger.Debug().
			Str("service", name).
			Str("status", status.String()).
			Msg("background health refresh")
	}
}

// cryptoRandDuration returns a cryptographically random duration between 0 and maxDur.
func cryptoRandDuration(maxDur time.Duration) time.Duration {
	if maxDur <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	n := binary.LittleEndian.Uint64(b[:])
	//nolint:gosec // G115: maxDur is always positive (checked above), safe conversion
	return time.Duration(n % uint64(maxDur))
}
