package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
		trust  bool
	}{
		{name: "remote addr", remote: "198.51.100.7:5555", want: "198.51.100.7"},
		{name: "xff ignored when untrusted", remote: "198.51.100.7:5555", xff: "203.0.113.1", want: "198.51.100.7"},
		{name: "xff first hop when trusted", remote: "10.0.0.1:80", xff: "203.0.113.1, 10.0.0.2", trust: true, want: "203.0.113.1"},
		{name: "empty xff falls back", remote: "10.0.0.1:80", xff: " ", trust: true, want: "10.0.0.1"},
		{name: "no port", remote: "unix-socket", want: "unix-socket"},
		{name: "ipv6", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientIP(req, tt.trust))
		})
	}
}

func TestRequestContextRoundTrip(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(HeaderRequestID, "inbound-id")

	rc := NewRequestContext(req, false)
	assert.Equal(t, "inbound-id", rc.RequestID)
	assert.Equal(t, "192.0.2.1", rc.ClientIP)
	assert.True(t, rc.UserID.IsAbsent())

	ctx := WithRequestContext(req.Context(), rc)
	got, ok := RequestContextFrom(ctx)
	require.True(t, ok)
	assert.Same(t, rc, got)

	_, ok = RequestContextFrom(req.Context())
	assert.False(t, ok)
}

func TestRequestContextPrefersContextID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(HeaderRequestID, "header-id")
	req = req.WithContext(AddRequestID(req.Context(), "ctx-id"))

	assert.Equal(t, "ctx-id", NewRequestContext(req, false).RequestID)
}
