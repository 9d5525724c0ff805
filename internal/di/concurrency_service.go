package di

import (
	"github.com/samber/do/v2"

	"github.com/omarluq/shopgate/internal/proxy"
)

// ConcurrencyService wraps the global in-flight request limiter.
type ConcurrencyService struct {
	Limiter *proxy.ConcurrencyLimiter
}

// NewConcurrencyService creates the limiter. An unset max_concurrent is unlimited.
func NewConcurrencyService(i do.Injector) (*ConcurrencyService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	maxConcurrent := cfgSvc.Config.Server.GetMaxConcurrentOption().OrElse(0)

	return &ConcurrencyService{Limiter: proxy.NewConcurrencyLimiter(int64(maxConcurrent))}, nil
}
