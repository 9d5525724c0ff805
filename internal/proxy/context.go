package proxy

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/samber/mo"
)

// Headers the gateway asserts to backends. Inbound copies are always dropped.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderClientIP  = "X-Client-IP"
	HeaderUserID    = "X-User-ID"
)

// identityHeaders are never forwarded as received from the client.
var identityHeaders = []string{HeaderRequestID, HeaderClientIP, HeaderUserID}

// RequestContext is the per-request state built at the edge. It is owned by
// one request and never shared.
type RequestContext struct {
	Header    http.Header
	UserID    mo.Option[string]
	RequestID string
	ClientIP  string
	Service   string
}

type requestContextKey struct{}

// NewRequestContext captures the request ID, client IP and inbound headers.
// X-Forwarded-For is only honoured when trustForwardedFor is set.
func NewRequestContext(r *http.Request, trustForwardedFor bool) *RequestContext {
	requestID := GetRequestID(r.Context())
	if requestID == "" {
		requestID = r.Header.Get(HeaderRequestID)
	}

	return &RequestContext{
		Header:    r.Header.Clone(),
		RequestID: requestID,
		ClientIP:  ClientIP(r, trustForwardedFor),
		UserID:    mo.None[string](),
	}
}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the RequestContext stored in ctx, if any.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

// ClientIP returns the caller's address. With trustForwardedFor the first
// X-Forwarded-For entry wins.
func ClientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
