package di

import (
	"fmt"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/omarluq/shopgate/internal/proxy"
)

// HandlerService wraps the fully wired gateway handler.
type HandlerService struct {
	Handler   http.Handler
	Forwarder *proxy.Forwarder
}

// NewGatewayHandler builds the forwarder, the operator endpoints and the
// middleware chain.
func NewGatewayHandler(i do.Injector) (*HandlerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	regSvc := do.MustInvoke[*RegistryService](i)
	trackerSvc := do.MustInvoke[*HealthTrackerService](i)
	cacheSvc := do.MustInvoke[*StatusCacheService](i)
	extractorSvc := do.MustInvoke[*ExtractorService](i)
	rateSvc := do.MustInvoke[*RateLimitService](i)
	concurrencySvc := do.MustInvoke[*ConcurrencyService](i)

	cfg := cfgSvc.Config

	forwarder, err := proxy.NewForwarder(
		regSvc.Registry,
		trackerSvc.Tracker,
		cacheSvc.Cache,
		extractorSvc.Extractor,
		proxy.ForwarderOptions{
			Logger:            loggerSvc.Component("forwarder"),
			FastFail:          cfg.Health.FastFail,
			TrustForwardedFor: cfg.Server.TrustForwardedFor,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create forwarder: %w", err)
	}

	handler := proxy.SetupRoutes(proxy.RouteDeps{
		Forwarder:         forwarder,
		Gateway:           proxy.NewGatewayHandler(regSvc.Registry, trackerSvc.Tracker, cacheSvc.Cache),
		Logger:            loggerSvc.Logger,
		Limiter:           rateSvc.Limiter,
		Concurrency:       concurrencySvc.Limiter,
		AdminAuth:         extractorSvc.AdminAuthenticator(),
		MaxBodyBytes:      cfg.Server.GetMaxBodyBytesOption().OrElse(0),
		LogHeaders:        cfg.Logging.LogHeaders,
		TrustForwardedFor: cfg.Server.TrustForwardedFor,
	})

	return &HandlerService{Handler: handler, Forwarder: forwarder}, nil
}
