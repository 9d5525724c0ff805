package proxy

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/omarluq/shopgate/internal/auth"
	"github.com/omarluq/shopgate/internal/ratelimit"
)

const authSucceededMsg = "authentication succeeded"

// sensitiveHeaders are redacted when request headers are logged.
var sensitiveHeaders = map[string]bool{
	"Authorization": true,
	"X-Api-Key":     true,
	"Cookie":        true,
}

// RequestIDMiddleware propagates or generates X-Request-ID and attaches it to
// the request context and the response.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			ctx := AddRequestID(request.Context(), request.Header.Get(HeaderRequestID))
			writer.Header().Set(HeaderRequestID, GetRequestID(ctx))
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// LoggerMiddleware attaches logger to every request context so zerolog.Ctx
// works downstream. It must run before RequestIDMiddleware.
func LoggerMiddleware(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			next.ServeHTTP(writer, request.WithContext(logger.WithContext(request.Context())))
		})
	}
}

func withRequestFields(ctx context.Context, r *http.Request, shortID string) zerolog.Context {
	return zerolog.Ctx(ctx).With().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("req_id", shortID)
}

func logRequestStart(ctx context.Context, request *http.Request, shortID string, logHeaders bool) {
	logger := withRequestFields(ctx, request, shortID).Logger()

	if logHeaders && logger.GetLevel() <= zerolog.DebugLevel {
		logger.Debug().
			Strs("headers", redactedHeaders(request.Header)).
			Str("remote_addr", request.RemoteAddr).
			Msg("request headers")
	}

	logger.Info().Msgf("%s %s", request.Method, request.URL.Path)
}

func logRequestCompletion(
	ctx context.Context,
	request *http.Request,
	wrapped *responseWriter,
	duration time.Duration,
	shortID string,
) {
	durationStr := formatDuration(duration)
	completionMsg := formatCompletionMessage(wrapped.statusCode, statusSymbol(wrapped.statusCode), durationStr)

	logCtx := withRequestFields(ctx, request, shortID).
		Int("status", wrapped.statusCode).
		Int64("bytes", wrapped.written).
		Str("duration", durationStr)

	if timings := getRequestTimings(ctx); timings != nil {
		if timings.Service != "" {
			logCtx = logCtx.Str("service", timings.Service)
		}
		addDurationFieldsCtx(&logCtx, "auth_time", timings.Auth)
		addDurationFieldsCtx(&logCtx, "upstream_time", timings.Upstream)
	}

	logger := logCtx.Logger()
	switch {
	case wrapped.statusCode >= 500:
		logger.Error().Msg(completionMsg)
	case wrapped.statusCode >= 400:
		logger.Warn().Msg(completionMsg)
	default:
		logger.Info().Msg(completionMsg)
	}
}

func statusSymbol(statusCode int) string {
	switch {
	case statusCode >= 500:
		return "✗"
	case statusCode >= 400:
		return "⚠"
	default:
		return "✓"
	}
}

// LoggingMiddleware logs the start and completion of every request.
// With logHeaders, inbound headers are logged at debug level with
// credentials redacted.
func LoggingMiddleware(logHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			start := time.Now()

			ctx, _ := withRequestTimings(request.Context())
			request = request.WithContext(ctx)

			wrapped := &responseWriter{ResponseWriter: writer, statusCode: http.StatusOK}

			shortID := GetRequestID(ctx)
			if len(shortID) > 8 {
				shortID = shortID[:8]
			}

			logRequestStart(ctx, request, shortID, logHeaders)
			next.ServeHTTP(wrapped, request)
			logRequestCompletion(ctx, request, wrapped, time.Since(start), shortID)
		})
	}
}

// redactedHeaders renders headers as sorted "Name: value" pairs.
func redactedHeaders(h http.Header) []string {
	out := make([]string, 0, len(h))
	for name, values := range h {
		value := strings.Join(values, ", ")
		if sensitiveHeaders[http.CanonicalHeaderKey(name)] {
			value = redactValue(value)
		}
		out = append(out, name+": "+value)
	}
	sort.Strings(out)
	return out
}

func redactValue(v string) string {
	if scheme, _, ok := strings.Cut(v, " "); ok && strings.EqualFold(scheme, "bearer") {
		return scheme + " [REDACTED]"
	}
	return "[REDACTED]"
}

// formatDuration formats duration in a human-readable form with microsecond precision.
func formatDuration(duration time.Duration) string {
	if duration <= 0 {
		return "0s"
	}
	duration = duration.Round(time.Microsecond)
	switch {
	case duration < time.Millisecond:
		return fmt.Sprintf("%dµs", duration.Microseconds())
	case duration < time.Second:
		return fmt.Sprintf("%.2fms", float64(duration)/float64(time.Millisecond))
	case duration < time.Minute:
		return fmt.Sprintf("%.2fs", duration.Seconds())
	default:
		return duration.Truncate(time.Second).String()
	}
}

func formatCompletionMessage(status int, symbol, duration string) string {
	return symbol + " " + http.StatusText(status) + " (" + duration + ")"
}

// responseWriter captures the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.written += int64(n)
	return n, err
}

// Flush lets streamed backend responses pass through unbuffered.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// ConcurrencyLimiter enforces a global maximum number of in-flight requests.
type ConcurrencyLimiter struct {
	limit   int64
	current atomic.Int64
}

// NewConcurrencyLimiter creates a limiter. A limit of 0 or less is unlimited.
func NewConcurrencyLimiter(maxLimit int64) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{limit: maxLimit}
}

// Limit returns the configured limit.
func (l *ConcurrencyLimiter) Limit() int64 {
	return l.limit
}

// CurrentInFlight returns the current number of in-flight requests.
func (l *ConcurrencyLimiter) CurrentInFlight() int64 {
	return l.current.Load()
}

// TryAcquire reserves a slot, or reports false when the limit is reached.
func (l *ConcurrencyLimiter) TryAcquire() bool {
	if l.limit <= 0 {
		l.current.Add(1)
		return true
	}

	for {
		current := l.current.Load()
		if current >= l.limit {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release frees a slot taken by TryAcquire.
func (l *ConcurrencyLimiter) Release() {
	l.current.Add(-1)
}

// ConcurrencyMiddleware answers 503 server_busy once the limiter is full.
func ConcurrencyMiddleware(limiter *ConcurrencyLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if !limiter.TryAcquire() {
				zerolog.Ctx(request.Context()).Warn().
					Int64("limit", limiter.Limit()).
					Int64("current", limiter.CurrentInFlight()).
					Msg("request rejected: concurrency limit reached")
				WriteRetryableError(writer, request, http.StatusServiceUnavailable, ErrTypeServerBusy,
					"gateway is at maximum capacity, please retry later", time.Second)
				return
			}
			defer limiter.Release()
			next.ServeHTTP(writer, request)
		})
	}
}

// MaxBodyBytesMiddleware caps the request body. Reads past the limit fail
// and the forwarder answers 413.
func MaxBodyBytesMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.ContentLength > limit && limit > 0 {
				WriteError(writer, request, http.StatusRequestEntityTooLarge, ErrTypeRequestTooLarge,
					fmt.Sprintf("request body exceeds %d bytes", limit))
				return
			}
			if limit > 0 && request.Body != nil {
				request.Body = http.MaxBytesReader(writer, request.Body, limit)
			}
			next.ServeHTTP(writer, request)
		})
	}
}

// RateLimitMiddleware applies a per-client token bucket keyed by client IP.
func RateLimitMiddleware(limiter *ratelimit.ClientLimiter, trustForwardedFor bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			client := ClientIP(request, trustForwardedFor)
			decision := limiter.Allow(client)
			if !decision.Allowed {
				zerolog.Ctx(request.Context()).Warn().
					Str("client_ip", client).
					Dur("retry_after", decision.RetryAfter).
					Msg("request rejected: rate limit exceeded")
				WriteRetryableError(writer, request, http.StatusTooManyRequests, ErrTypeRateLimited,
					decision.Err().Error(), decision.RetryAfter)
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

// AdminAuthMiddleware guards operator endpoints. A nil authenticator lets
// every request through.
func AdminAuthMiddleware(authenticator auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authenticator == nil {
			return next
		}
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			start := time.Now()
			result := authenticator.Validate(request)
			recordAuthTiming(request.Context(), start)

			if !handleAuthResult(writer, request, result) {
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

func handleAuthResult(writer http.ResponseWriter, request *http.Request, result auth.Result) bool {
	logger := zerolog.Ctx(request.Context())
	if !result.Valid {
		logger.Warn().
			Str("auth_type", string(result.Type)).
			Str("error", result.Error).
			Msg("authentication failed")
		WriteError(writer, request, http.StatusUnauthorized, ErrTypeUnauthorized, result.Error)
		return false
	}

	logger.Debug().Str("auth_type", string(result.Type)).Msg(authSucceededMsg)
	return true
}

func recordAuthTiming(ctx context.Context, start time.Time) {
	if timings := getRequestTimings(ctx); timings != nil {
		timings.Auth = time.Since(start)
	}
}
