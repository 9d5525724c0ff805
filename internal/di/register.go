package di

import "github.com/samber/do/v2"

// RegisterSingletons registers all service providers as singletons.
// Services are registered in dependency order:
// 1. Config (no dependencies)
// 2. Logger (depends on Config)
// 3. Cache (depends on Config, Logger)
// 4. Registry (depends on Config)
// 5. HealthTracker (depends on Registry, Config, Logger)
// 6. StatusCache (depends on Registry, Config, Logger)
// 7. Checker (depends on StatusCache, Config, Logger)
// 8. Extractor (depends on Config, Cache, Logger)
// 9. RateLimit (depends on Config)
// 10. Concurrency (depends on Config)
// 11. Handler (depends on all above services)
// 12. Server (depends on Handler, Registry, Config).
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewConfig)
	do.Provide(i, NewLogger)
	do.Provide(i, NewCache)
	do.Provide(i, NewRegistry)
	do.Provide(i, NewHealthTracker)
	do.Provide(i, NewStatusCache)
	do.Provide(i, NewChecker)
	do.Provide(i, NewExtractor)
	do.Provide(i, NewRateLimit)
	do.Provide(i, NewConcurrencyService)
	do.Provide(i, NewGatewayHandler)
	do.Provide(i, NewHTTPServer)
}
