package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server timeouts. The write timeout is stretched to cover the slowest
// backend so a legitimate slow response is never cut by the server.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	writeTimeoutSlack = 5 * time.Second
)

// Server wraps http.Server with gateway configuration.
type Server struct {
	httpServer *http.Server
	addr       string
}

// NewServer creates a Server. maxUpstreamTimeout is the largest service
// timeout in the registry. If enableHTTP2 is true, HTTP/2 cleartext (h2c)
// is accepted on the plain listener.
func NewServer(addr string, handler http.Handler, enableHTTP2 bool, maxUpstreamTimeout time.Duration) *Server {
	finalHandler := handler
	if enableHTTP2 {
		finalHandler = h2c.NewHandler(handler, &http2.Server{})
	}

	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           finalHandler,
			ReadHeaderTimeout: readHeaderTimeout,
			WriteTimeout:      maxUpstreamTimeout + writeTimeoutSlack,
			IdleTimeout:       idleTimeout,
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe starts the server (blocks). A graceful shutdown is not an error.
func (s *Server) ListenAndServe() error {
	return ignoreClosed(s.httpServer.ListenAndServe())
}

// Serve accepts connections on l (blocks).
func (s *Server) Serve(l net.Listener) error {
	return ignoreClosed(s.httpServer.Serve(l))
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
