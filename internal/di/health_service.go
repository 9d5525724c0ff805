package di

import (
	"net/http"
	"sync"

	"github.com/samber/do/v2"

	"github.com/omarluq/shopgate/internal/health"
)

// HealthTrackerService wraps the per-service circuit breakers.
type HealthTrackerService struct {
	Tracker *health.Tracker
}

// StatusCacheService wraps the health cache.
type StatusCacheService struct {
	Cache *health.StatusCache
}

// CheckerService wraps the background health refresher.
type CheckerService struct {
	Checker   *health.Checker
	started   bool
	startedMu sync.Mutex
}

// NewHealthTracker creates one circuit breaker per registered service.
func NewHealthTracker(i do.Injector) (*HealthTrackerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	regSvc := do.MustInvoke[*RegistryService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	tracker := health.NewTracker(
		regSvc.Registry.List(),
		cfgSvc.Config.Health.CircuitBreaker,
		loggerSvc.Component("circuit"),
	)
	return &HealthTrackerService{Tracker: tracker}, nil
}

// NewStatusCache creates the health cache with an HTTP prober.
func NewStatusCache(i do.Injector) (*StatusCacheService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	regSvc := do.MustInvoke[*RegistryService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	healthCfg := cfgSvc.Config.Health
	statusCache := health.NewStatusCache(
		regSvc.Registry.List(),
		health.NewHTTPProber(&http.Client{}),
		healthCfg.GetTTL(),
		loggerSvc.Component("health"),
		health.WithProbeTimeout(healthCfg.GetProbeTimeout()),
	)
	return &StatusCacheService{Cache: statusCache}, nil
}

// NewChecker creates the background refresher. It is started by serve.
func NewChecker(i do.Injector) (*CheckerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	cacheSvc := do.MustInvoke[*StatusCacheService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	checker := health.NewChecker(
		cacheSvc.Cache,
		cfgSvc.Config.Health.HealthCheck,
		loggerSvc.Component("health-checker"),
	)
	return &CheckerService{Checker: checker}, nil
}

// Start starts the health checker and records that it is running.
func (h *CheckerService) Start() {
	h.startedMu.Lock()
	defer h.startedMu.Unlock()
	if h.started {
		return
	}
	h.started = true
	h.Checker.Start()
}

// Shutdown implements do.Shutdowner for graceful checker cleanup.
func (h *CheckerService) Shutdown() error {
	h.startedMu.Lock()
	defer h.startedMu.Unlock()
	if h.started {
		h.Checker.Stop()
		h.started = false
	}
	return nil
}
