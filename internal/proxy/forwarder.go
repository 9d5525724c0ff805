package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"net/http/httputil"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"github.com/omarluq/shopgate/internal/auth"
	"github.com/omarluq/shopgate/internal/health"
	"github.com/omarluq/shopgate/internal/registry"
)

// TokenExtractor verifies the Authorization header of an inbound request.
// It returns None when the header is empty.
type TokenExtractor interface {
	Extract(ctx context.Context, header string) (mo.Option[auth.UserContext], error)
}

// ForwarderOptions tunes a Forwarder. The zero value is usable.
type ForwarderOptions struct {
	// Transport carries outbound requests. Defaults to NewTransport().
	Transport http.RoundTripper
	// Logger receives reverse proxy transport errors.
	Logger *zerolog.Logger
	// FastFail rejects requests to a service whose cached status is UNHEALTHY
	// while its circuit is still closed. The rejection is a flat 503
	// service_unhealthy with Retry-After 1; the request is never sent as a
	// trial. The background checker marks the service healthy again.
	FastFail          bool
	TrustForwardedFor bool
}

// Forwarder routes one inbound request to its backend service.
//
// The order of checks is fixed: unknown route (404), then authentication
// (401), then the circuit breaker (503), then the optional health fast-fail,
// and only then the outbound call. Rejections before the breaker never touch
// resilience state.
type Forwarder struct {
	registry  *registry.Registry
	tracker   *health.Tracker
	health    *health.StatusCache
	extractor TokenExtractor
	proxies   map[string]*httputil.ReverseProxy
	opts      ForwarderOptions
}

// NewTransport returns the outbound transport shared by all services.
func NewTransport() *http.Transport {
	t, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{}
	}
	t = t.Clone()
	t.MaxIdleConnsPerHost = 64
	return t
}

// NewForwarder builds one reverse proxy per registered service.
func NewForwarder(
	reg *registry.Registry,
	tracker *health.Tracker,
	statusCache *health.StatusCache,
	extractor TokenExtractor,
	opts ForwarderOptions,
) (*Forwarder, error) {
	if opts.Transport == nil {
		opts.Transport = NewTransport()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	f := &Forwarder{
		registry:  reg,
		tracker:   tracker,
		health:    statusCache,
		extractor: extractor,
		proxies:   make(map[string]*httputil.ReverseProxy, reg.Len()),
		opts:      opts,
	}

	for _, svc := range reg.List() {
		if _, err := tracker.Breaker(svc.Name); err != nil {
			return nil, fmt.Errorf("forwarder: %w", err)
		}
		if _, err := statusCache.Peek(svc.Name); err != nil {
			return nil, fmt.Errorf("forwarder: %w", err)
		}
		f.proxies[svc.Name] = f.newReverseProxy(svc)
	}

	return f, nil
}

// ServeHTTP handles one inbound request end to end.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if GetRequestID(ctx) == "" {
		ctx = AddRequestID(ctx, r.Header.Get(HeaderRequestID))
		r = r.WithContext(ctx)
	}

	rc := NewRequestContext(r, f.opts.TrustForwardedFor)
	w.Header().Set(HeaderRequestID, rc.RequestID)
	r = r.WithContext(WithRequestContext(ctx, rc))

	svc, err := f.registry.Resolve(r.URL.Path)
	if err != nil {
		f.reject(w, r, err)
		return
	}
	rc.Service = svc.Name
	timings := getRequestTimings(r.Context())
	if timings != nil {
		timings.Service = svc.Name
	}

	authStart := time.Now()
	r, err = f.authenticate(r, rc, svc)
	recordAuthTiming(r.Context(), authStart)
	if err != nil {
		f.reject(w, r, err)
		return
	}

	breaker, err := f.tracker.Breaker(svc.Name)
	if err != nil {
		f.reject(w, r, err)
		return
	}
	done, err := breaker.Allow()
	if err != nil {
		f.reject(w, r, err)
		return
	}

	d := &dispatch{service: svc, done: done, health: f.health}
	// Releases the breaker slot if nothing else recorded an outcome.
	defer d.record(health.OutcomeRejected)

	if f.opts.FastFail && breaker.State() == health.StateClosed {
		if err := f.checkHealth(r.Context(), svc); err != nil {
			d.record(health.OutcomeRejected)
			f.reject(w, r, err)
			return
		}
	}

	f.forward(w, r, svc, d)
}

// authenticate runs the extractor for protected routes and for public routes
// that present a token anyway. A presented token must always be valid.
func (f *Forwarder) authenticate(
	r *http.Request, rc *RequestContext, svc *registry.ServiceDescriptor,
) (*http.Request, error) {
	header := r.Header.Get("Authorization")
	protected := svc.Classify(r.URL.Path) == registry.AccessProtected
	if !protected && header == "" {
		return r, nil
	}

	if f.extractor == nil {
		return r, &auth.InvalidTokenError{Reason: auth.ReasonNotConfigured}
	}

	user, err := f.extractor.Extract(r.Context(), header)
	if err != nil {
		return r, err
	}
	u, ok := user.Get()
	if !ok {
		return r, &auth.InvalidTokenError{Reason: auth.ReasonMissing}
	}

	rc.UserID = mo.Some(u.UserID)
	ctx := auth.WithUser(r.Context(), u)
	logger := zerolog.Ctx(ctx).With().Str("user_id", u.UserID).Logger()
	return r.WithContext(logger.WithContext(ctx)), nil
}

func (f *Forwarder) checkHealth(ctx context.Context, svc *registry.ServiceDescriptor) error {
	status, err := f.health.GetStatus(ctx, svc.Name)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("service", svc.Name).Msg("health lookup skipped")
		return nil
	}
	if status == health.StatusUnhealthy {
		return &ServiceUnhealthyError{Service: svc.Name}
	}
	return nil
}

// forward dispatches the request. The outbound call is bounded by the service
// timeout and detached from the inbound connection's cancellation.
func (f *Forwarder) forward(w http.ResponseWriter, r *http.Request, svc *registry.ServiceDescriptor, d *dispatch) {
	timeout := svc.Timeout
	if timeout <= 0 {
		timeout = registry.DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()
	ctx = context.WithValue(ctx, dispatchKey{}, d)

	start := time.Now()
	f.proxies[svc.Name].ServeHTTP(w, r.WithContext(ctx))
	elapsed := time.Since(start)

	if timings := getRequestTimings(ctx); timings != nil {
		timings.Upstream = elapsed
	}

	event := zerolog.Ctx(ctx).Debug().
		Str("service", svc.Name).
		Str("outcome", d.Outcome().String())
	addDurationFields(event, "upstream_time", elapsed).Msg("request forwarded")
}

func (f *Forwarder) reject(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())
	var circuitOpen *health.CircuitOpenError
	switch {
	case errors.As(err, &circuitOpen):
		logger.Warn().Err(err).Msg("request rejected by circuit breaker")
	default:
		logger.Debug().Err(err).Msg("request rejected")
	}
	WriteProxyError(w, r, err)
}

func (f *Forwarder) newReverseProxy(svc *registry.ServiceDescriptor) *httputil.ReverseProxy {
	target := svc.BaseURL

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = svc.UpstreamPath(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			if pr.In.URL.RawPath != "" {
				pr.Out.URL.RawPath = svc.UpstreamPath(pr.In.URL.RawPath)
			}
			pr.SetURL(target)
			pr.SetXForwarded()

			for _, h := range identityHeaders {
				pr.Out.Header.Del(h)
			}
			if rc, ok := RequestContextFrom(pr.In.Context()); ok {
				pr.Out.Header.Set(HeaderRequestID, rc.RequestID)
				pr.Out.Header.Set(HeaderClientIP, rc.ClientIP)
				if userID, ok := rc.UserID.Get(); ok {
					pr.Out.Header.Set(HeaderUserID, userID)
				}
			}
		},
		Transport:     f.opts.Transport,
		FlushInterval: -1,
		ErrorLog:      stdlog.New(f.opts.Logger, "", 0),
		ModifyResponse: func(resp *http.Response) error {
			// The gateway already set its own X-Request-ID on the response.
			resp.Header.Del(HeaderRequestID)
			d, ok := dispatchFrom(resp.Request.Context())
			if !ok {
				return nil
			}
			outcome := health.Classify(resp.StatusCode, nil)
			// An upgraded connection needs the raw body; there is nothing left to time.
			if resp.StatusCode == http.StatusSwitchingProtocols {
				d.record(outcome)
				return nil
			}
			resp.Body = &outcomeBody{
				ReadCloser: resp.Body,
				ctx:        resp.Request.Context(),
				dispatch:   d,
				outcome:    outcome,
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			d, _ := dispatchFrom(r.Context())

			var upstreamErr error
			switch {
			case IsBodyTooLargeError(err):
				d.record(health.OutcomeRejected)
				upstreamErr = err
			case health.IsTimeout(err):
				d.record(health.OutcomeTimeout)
				upstreamErr = &UpstreamTimeoutError{Service: svc.Name, Timeout: svc.Timeout, Err: err}
			default:
				d.record(health.OutcomeNetworkError)
				upstreamErr = &UpstreamNetworkError{Service: svc.Name, Err: err}
			}

			zerolog.Ctx(r.Context()).Warn().Err(err).Str("service", svc.Name).Msg("upstream request failed")
			WriteProxyError(w, r, upstreamErr)
		},
	}
}

// outcomeBody defers outcome recording until the backend body is fully read.
// A backend that sends headers and then stalls past the service timeout is a
// timeout, not a success.
type outcomeBody struct {
	io.ReadCloser
	ctx      context.Context
	dispatch *dispatch
	outcome  health.Outcome
}

func (b *outcomeBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		b.dispatch.record(b.outcome)
	case errors.Is(b.ctx.Err(), context.DeadlineExceeded) || health.IsTimeout(err):
		b.dispatch.record(health.OutcomeTimeout)
	default:
		b.dispatch.record(health.OutcomeNetworkError)
	}
	return n, err
}

// Close records the status outcome when the body was abandoned without a
// read error, for example because the client went away.
func (b *outcomeBody) Close() error {
	err := b.ReadCloser.Close()
	b.dispatch.record(b.outcome)
	return err
}

type dispatchKey struct{}

func dispatchFrom(ctx context.Context) (*dispatch, bool) {
	d, ok := ctx.Value(dispatchKey{}).(*dispatch)
	return d, ok && d != nil
}

// dispatch records the outcome of one admitted request exactly once, into
// the circuit breaker and the status cache.
type dispatch struct {
	service *registry.ServiceDescriptor
	done    func(health.Outcome)
	health  *health.StatusCache
	outcome health.Outcome
	once    sync.Once
	mu      sync.Mutex
}

func (d *dispatch) record(o health.Outcome) {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.mu.Lock()
		d.outcome = o
		d.mu.Unlock()

		d.done(o)
		if o != health.OutcomeRejected {
			d.health.RecordOutcome(d.service.Name, !o.IsFailure())
		}
	})
}

// Outcome returns the recorded outcome. Before any record it reads as
// OutcomeSuccess, the zero value.
func (d *dispatch) Outcome() health.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outcome
}
