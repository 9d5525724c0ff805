package di

import (
	"context"
	"time"

	"github.com/samber/do/v2"
	"github.com/samber/lo"

	"github.com/omarluq/shopgate/internal/proxy"
	"github.com/omarluq/shopgate/internal/registry"
)

// ServerService wraps the HTTP server.
type ServerService struct {
	Server *proxy.Server
}

// NewHTTPServer creates the HTTP server. Its write timeout covers the
// slowest registered service.
func NewHTTPServer(i do.Injector) (*ServerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	handlerSvc := do.MustInvoke[*HandlerService](i)
	regSvc := do.MustInvoke[*RegistryService](i)

	slowest := lo.MaxBy(regSvc.Registry.List(), func(a, b *registry.ServiceDescriptor) bool {
		return a.Timeout > b.Timeout
	})
	maxTimeout := registry.DefaultTimeout
	if slowest != nil && slowest.Timeout > maxTimeout {
		maxTimeout = slowest.Timeout
	}

	server := proxy.NewServer(
		cfgSvc.Config.Server.GetListen(),
		handlerSvc.Handler,
		cfgSvc.Config.Server.EnableHTTP2,
		maxTimeout,
	)

	return &ServerService{Server: server}, nil
}

// Shutdown implements do.Shutdowner for graceful server shutdown.
func (s *ServerService) Shutdown() error {
	if s.Server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.Server.Shutdown(ctx)
	}
	return nil
}
