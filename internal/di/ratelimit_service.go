package di

import (
	"github.com/samber/do/v2"

	"github.com/omarluq/shopgate/internal/ratelimit"
)

// RateLimitService wraps the per-client limiter. Limiter is nil when rate
// limiting is disabled.
type RateLimitService struct {
	Limiter *ratelimit.ClientLimiter
}

// NewRateLimit creates the limiter and starts its idle-client sweeper.
func NewRateLimit(i do.Injector) (*RateLimitService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	rl := cfgSvc.Config.Server.RateLimit

	if !rl.IsEnabled() {
		return &RateLimitService{}, nil
	}

	limiter := ratelimit.NewClientLimiter(rl.RequestsPerSecond, rl.GetBurst(), rl.GetIdleTTL())
	limiter.Start()
	return &RateLimitService{Limiter: limiter}, nil
}

// Shutdown implements do.Shutdowner.
func (s *RateLimitService) Shutdown() error {
	if s.Limiter != nil {
		s.Limiter.Stop()
	}
	return nil
}
