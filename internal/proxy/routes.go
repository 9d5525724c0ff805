package proxy

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/omarluq/shopgate/internal/auth"
	"github.com/omarluq/shopgate/internal/ratelimit"
)

// RouteDeps are the components SetupRoutes wires together. Optional fields
// may be nil.
type RouteDeps struct {
	Forwarder   *Forwarder
	Gateway     *GatewayHandler
	Logger      *zerolog.Logger
	Limiter     *ratelimit.ClientLimiter
	Concurrency *ConcurrencyLimiter
	AdminAuth   auth.Authenticator
	// MaxBodyBytes caps request bodies when positive.
	MaxBodyBytes      int64
	LogHeaders        bool
	TrustForwardedFor bool
}

// SetupRoutes creates the gateway handler.
// Routes:
//   - GET /health - gateway liveness
//   - GET /gateway/services - registered services with breaker and health state
//   - GET /gateway/health - aggregate health from the health cache
//   - everything else - forwarded by path prefix
//
// Middleware runs outermost first: logger, request ID, access log, rate
// limit, concurrency limit, body limit.
func SetupRoutes(deps RouteDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", Liveness)

	if deps.Gateway != nil {
		admin := AdminAuthMiddleware(deps.AdminAuth)
		mux.Handle("GET /gateway/services", admin(http.HandlerFunc(deps.Gateway.Services)))
		mux.Handle("GET /gateway/health", admin(http.HandlerFunc(deps.Gateway.Health)))
	}

	mux.Handle("/", deps.Forwarder)

	var handler http.Handler = mux
	if deps.MaxBodyBytes > 0 {
		handler = MaxBodyBytesMiddleware(deps.MaxBodyBytes)(handler)
	}
	if deps.Concurrency != nil {
		handler = ConcurrencyMiddleware(deps.Concurrency)(handler)
	}
	if deps.Limiter != nil {
		handler = RateLimitMiddleware(deps.Limiter, deps.TrustForwardedFor)(handler)
	}
	handler = LoggingMiddleware(deps.LogHeaders)(handler)
	handler = RequestIDMiddleware()(handler)

	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return LoggerMiddleware(logger)(handler)
}
