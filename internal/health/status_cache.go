package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/omarluq/shopgate/internal/registry"
)

// Status is the cached health of one backend service.
type Status int

// Health statuses.
const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusUnhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name in JSON responses.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name as written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "HEALTHY":
		*s = StatusHealthy
	case "UNHEALTHY":
		*s = StatusUnhealthy
	case "UNKNOWN":
		*s = StatusUnknown
	default:
		return fmt.Errorf("health: unknown status %q", text)
	}
	return nil
}

// Record is a read-only view of one service's health entry.
type Record struct {
	LastCheckedAt time.Time
	Service       string
	LastError     string
	TTL           time.Duration
	Status        Status
}

type entry struct {
	checkedAt  time.Time
	service    *registry.ServiceDescriptor
	lastErr    string
	ttl        time.Duration
	status     Status
	generation uint64
	mu         sync.Mutex
}

// view returns the trusted status: anything older than the TTL reads as UNKNOWN.
// Caller holds e.mu.
func (e *entry) view(now time.Time) Record {
	status := e.status
	if status != StatusUnknown && now.Sub(e.checkedAt) >= e.ttl {
		status = StatusUnknown
	}
	return Record{
		Service:       e.service.Name,
		Status:        status,
		LastCheckedAt: e.checkedAt,
		TTL:           e.ttl,
		LastError:     e.lastErr,
	}
}

// StatusCache holds the last known health of every service and deduplicates probes.
type StatusCache struct {
	entries      map[string]*entry
	prober       Prober
	logger       *zerolog.Logger
	now          func() time.Time
	group        singleflight.Group
	order        []string
	probeTimeout time.Duration
}

// StatusCacheOption configures a StatusCache.
type StatusCacheOption func(*StatusCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) StatusCacheOption {
	return func(c *StatusCache) {
		c.now = now
	}
}

// WithProbeTimeout sets the per-probe deadline.
func WithProbeTimeout(d time.Duration) StatusCacheOption {
	return func(c *StatusCache) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// NewStatusCache creates an UNKNOWN entry per descriptor. A zero descriptor
// HealthTTL uses defaultTTL.
func NewStatusCache(
	descriptors []*registry.ServiceDescriptor,
	prober Prober,
	defaultTTL time.Duration,
	logger *zerolog.Logger,
	opts ...StatusCacheOption,
) *StatusCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Duration(DefaultTTLMS) * time.Millisecond
	}

	c := &StatusCache{
		entries:      make(map[string]*entry, len(descriptors)),
		order:        make([]string, 0, len(descriptors)),
		prober:       prober,
		logger:       logger,
		now:          time.Now,
		probeTimeout: time.Duration(DefaultProbeTimeoutMS) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, d := range descriptors {
		ttl := d.HealthTTL
		if ttl <= 0 {
			ttl = defaultTTL
		}
		c.entries[d.Name] = &entry{service: d, ttl: ttl}
		c.order = append(c.order, d.Name)
	}

	return c
}

func (c *StatusCache) lookup(service string) (*entry, error) {
	e, ok := c.entries[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return e, nil
}

// GetStatus returns the cached status while it is fresh. Otherwise it joins
// (or starts) the single in-flight probe for the service. The probe itself
// is bounded by the probe timeout, not by ctx; ctx only bounds the wait.
func (c *StatusCache) GetStatus(ctx context.Context, service string) (Status, error) {
	e, err := c.lookup(service)
	if err != nil {
		return StatusUnknown, err
	}

	e.mu.Lock()
	rec := e.view(c.now())
	e.mu.Unlock()

	if rec.Status != StatusUnknown {
		return rec.Status, nil
	}
	return c.await(ctx, e, false)
}

// Refresh forces a deduplicated probe regardless of freshness.
func (c *StatusCache) Refresh(ctx context.Context, service string) (Status, error) {
	e, err := c.lookup(service)
	if err != nil {
		return StatusUnknown, err
	}
	return c.await(ctx, e, true)
}

func (c *StatusCache) await(ctx context.Context, e *entry, force bool) (Status, error) {
	ch := c.group.DoChan(e.service.Name, func() (any, error) {
		// A flight that finished just before this one may already have refreshed the entry.
		if !force {
			e.mu.Lock()
			rec := e.view(c.now())
			e.mu.Unlock()
			if rec.Status != StatusUnknown {
				return rec.Status, nil
			}
		}
		return c.probe(e), nil
	})

	select {
	case <-ctx.Done():
		return StatusUnknown, ctx.Err()
	case res := <-ch:
		status, ok := res.Val.(Status)
		if !ok {
			return StatusUnknown, nil
		}
		return status, nil
	}
}

// probe runs one health probe and applies the result unless a forwarding
// failure was recorded while it was in flight.
func (c *StatusCache) probe(e *entry) Status {
	e.mu.Lock()
	startGen := e.generation
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.probeTimeout)
	err := c.prober.Probe(ctx, e.service)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.generation != startGen {
		return e.status
	}

	e.generation++
	e.checkedAt = c.now()
	if err != nil {
		e.status = StatusUnhealthy
		e.lastErr = err.Error()
	} else {
		e.status = StatusHealthy
		e.lastErr = ""
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("service", e.service.Name).
			Str("status", e.status.String()).
			Err(err).
			Msg("health probe completed")
	}
	return e.status
}

// RecordOutcome feeds a forwarding result back into the cache. A failure
// marks the service UNHEALTHY immediately; a success changes nothing, since
// only a probe may declare a service healthy again.
func (c *StatusCache) RecordOutcome(service string, success bool) {
	if success {
		return
	}
	e, err := c.lookup(service)
	if err != nil {
		return
	}

	e.mu.Lock()
	wasHealthy := e.status == StatusHealthy
	e.status = StatusUnhealthy
	e.checkedAt = c.now()
	e.lastErr = "forwarding failure"
	e.generation++
	e.mu.Unlock()

	if wasHealthy && c.logger != nil {
		c.logger.Warn().
			Str("service", service).
			Msg("service marked unhealthy after forwarding failure")
	}
}

// Peek returns the current record without probing.
func (c *StatusCache) Peek(service string) (Record, error) {
	e, err := c.lookup(service)
	if err != nil {
		return Record{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view(c.now()), nil
}

// Snapshot returns every record in registration order without probing.
func (c *StatusCache) Snapshot() []Record {
	now := c.now()
	return lo.Map(c.order, func(name string, _ int) Record {
		e := c.entries[name]
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.view(now)
	})
}

// NeedsRefresh reports whether a background refresh should probe the service:
// its record is stale or it is currently UNHEALTHY.
func (c *StatusCache) NeedsRefresh(service string) bool {
	rec, err := c.Peek(service)
	if err != nil {
		return false
	}
	return rec.Status != StatusHealthy
}

// Services returns the service names in registration order.
func (c *StatusCache) Services() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
