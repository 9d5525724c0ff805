package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/omarluq/shopgate/internal/registry"
)

// Prober checks whether a backend service is up.
// Implementations should be lightweight and fast.
type Prober interface {
	// Probe returns nil if the service is healthy.
	Probe(ctx context.Context, service *registry.ServiceDescriptor) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, service *registry.ServiceDescriptor) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, service *registry.ServiceDescriptor) error {
	return f(ctx, service)
}

// HTTPProber issues GET {baseURL}{healthPath} and expects a 2xx response.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates an HTTP prober. The caller's context bounds each probe.
func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(DefaultProbeTimeoutMS) * time.Millisecond}
	}
	return &HTTPProber{client: client}
}

// Probe performs the HTTP health check.
func (p *HTTPProber) Probe(ctx context.Context, service *registry.ServiceDescriptor) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, service.HealthURL(), http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHealthCheckFailed, err)
	}
	defer func() {
		//nolint:errcheck // draining a probe body is best effort
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		//nolint:errcheck // close errors on probe bodies carry no signal
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrHealthCheckFailed, resp.StatusCode)
	}
	return nil
}
