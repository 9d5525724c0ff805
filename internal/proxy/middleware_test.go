package proxy

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/shopgate/internal/auth"
	"github.com/omarluq/shopgate/internal/ratelimit"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
}

func TestRequestIDMiddlewarePropagatesInboundID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	RequestIDMiddleware()(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
}

func TestLoggingMiddlewareLogsCompletion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	handler := LoggerMiddleware(&logger)(RequestIDMiddleware()(LoggingMiddleware(true)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("nope"))
		}))))

	req := httptest.NewRequest(http.MethodGet, "/orders/1", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("X-Api-Key", "secret-key")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `"status":502`)
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"bytes":4`)
	assert.Contains(t, out, `"request_id"`)
	assert.Contains(t, out, "Bearer [REDACTED]")
	assert.NotContains(t, out, "secret-token")
	assert.NotContains(t, out, "secret-key")
}

func TestLoggingMiddlewareStatusLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level  string
		status int
	}{
		{level: "info", status: http.StatusOK},
		{level: "warn", status: http.StatusNotFound},
		{level: "error", status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			handler := LoggerMiddleware(&logger)(LoggingMiddleware(false)(
				http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(tt.status)
				})))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, 2)
			assert.Contains(t, lines[1], `"level":"`+tt.level+`"`)
		})
	}
}

func TestResponseWriterFlushAndUnwrap(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusTeapot)
	_, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	rw.Flush()

	assert.Equal(t, http.StatusAccepted, rw.statusCode)
	assert.Equal(t, int64(5), rw.written)
	assert.True(t, rec.Flushed)
	assert.Same(t, rec, rw.Unwrap())
	require.NoError(t, http.NewResponseController(rw).Flush())
}

func TestRedactedHeaders(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	h.Set("X-Api-Key", "k")
	h.Set("Accept", "application/json")

	assert.Equal(t, []string{
		"Accept: application/json",
		"Authorization: Bearer [REDACTED]",
		"X-Api-Key: [REDACTED]",
	}, redactedHeaders(h))
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want string
		in   time.Duration
	}{
		{want: "0s", in: 0},
		{want: "250µs", in: 250 * time.Microsecond},
		{want: "12.50ms", in: 12500 * time.Microsecond},
		{want: "1.50s", in: 1500 * time.Millisecond},
		{want: "2m5s", in: 125 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestConcurrencyLimiter(t *testing.T) {
	t.Parallel()

	limiter := NewConcurrencyLimiter(2)
	assert.True(t, limiter.TryAcquire())
	assert.True(t, limiter.TryAcquire())
	assert.False(t, limiter.TryAcquire())
	assert.Equal(t, int64(2), limiter.CurrentInFlight())

	limiter.Release()
	assert.True(t, limiter.TryAcquire())

	unlimited := NewConcurrencyLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.TryAcquire())
	}
}

func TestConcurrencyMiddlewareRejectsWhenFull(t *testing.T) {
	t.Parallel()

	limiter := NewConcurrencyLimiter(1)
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := ConcurrencyMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	}()
	<-entered

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	close(release)
	wg.Wait()

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), ErrTypeServerBusy)
	assert.Equal(t, int64(0), limiter.CurrentInFlight())
}

func TestMaxBodyBytesMiddleware(t *testing.T) {
	t.Parallel()

	var readErr error
	handler := MaxBodyBytesMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("123456")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// Unknown length is caught while reading.
	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader("123456")))
	req.ContentLength = -1
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, IsBodyTooLargeError(readErr))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.NewClientLimiter(1, 2, time.Minute)
	handler := RateLimitMiddleware(limiter, false)(okHandler)

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001").Code)

	rec := send("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), ErrTypeRateLimited)

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000").Code)
}

func TestAdminAuthMiddleware(t *testing.T) {
	t.Parallel()

	handler := AdminAuthMiddleware(auth.NewAPIKeyAuthenticator("ops-key"))(okHandler)

	tests := []struct {
		name   string
		key    string
		status int
	}{
		{name: "valid key", key: "ops-key", status: http.StatusOK},
		{name: "wrong key", key: "nope", status: http.StatusUnauthorized},
		{name: "missing key", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/gateway/services", http.NoBody)
			if tt.key != "" {
				req.Header.Set(auth.APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), ErrTypeUnauthorized)
			}
		})
	}
}

func TestAdminAuthMiddlewareNilAuthenticatorIsOpen(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	AdminAuthMiddleware(nil)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}
