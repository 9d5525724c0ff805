// Package proxy implements the shopgate HTTP edge: middleware, the request
// forwarder and the operator endpoints.
package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omarluq/shopgate/internal/auth"
	"github.com/omarluq/shopgate/internal/health"
	"github.com/omarluq/shopgate/internal/registry"
)

// Error types carried in the JSON error envelope.
const (
	ErrTypeNoRoute             = "no_route"
	ErrTypeInvalidToken        = "invalid_token"
	ErrTypeCircuitOpen         = "circuit_open"
	ErrTypeServiceUnhealthy    = "service_unhealthy"
	ErrTypeUpstreamTimeout     = "upstream_timeout"
	ErrTypeUpstreamUnavailable = "upstream_unavailable"
	ErrTypeRateLimited         = "rate_limited"
	ErrTypeServerBusy          = "server_busy"
	ErrTypeRequestTooLarge     = "request_too_large"
	ErrTypeUnauthorized        = "unauthorized"
	ErrTypeInternal            = "internal_error"
)

// UpstreamTimeoutError is returned when a backend does not answer within the
// service timeout. It maps to 504 and counts as a backend failure.
type UpstreamTimeoutError struct {
	Err     error
	Service string
	Timeout time.Duration
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("upstream %s timed out after %s", e.Service, e.Timeout)
}

func (e *UpstreamTimeoutError) Unwrap() error {
	return e.Err
}

// UpstreamNetworkError is returned when a backend cannot be reached. It maps
// to 502 and counts as a backend failure.
type UpstreamNetworkError struct {
	Err     error
	Service string
}

func (e *UpstreamNetworkError) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamNetworkError) Unwrap() error {
	return e.Err
}

// ServiceUnhealthyError is returned by the optional fast-fail check when the
// cached status of a service is UNHEALTHY.
type ServiceUnhealthyError struct {
	Service string
}

func (e *ServiceUnhealthyError) Error() string {
	return fmt.Sprintf("service %s is unhealthy", e.Service)
}

// IsBodyTooLargeError checks if an error is from http.MaxBytesReader.
func IsBodyTooLargeError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// ErrorResponse is the envelope of every gateway-generated error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one gateway error.
type ErrorDetail struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes the JSON error envelope. The request ID comes from the
// request context, falling back to the response header.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, errorType, message string) {
	requestID := GetRequestID(r.Context())
	if requestID == "" {
		requestID = w.Header().Get(HeaderRequestID)
	}

	writeJSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{
			Type:      errorType,
			Message:   message,
			RequestID: requestID,
		},
	})
}

// WriteRetryableError sets Retry-After (whole seconds, minimum 1) and writes
// the error envelope.
func WriteRetryableError(
	w http.ResponseWriter, r *http.Request, statusCode int, errorType, message string, retryAfter time.Duration,
) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	WriteError(w, r, statusCode, errorType, message)
}

func retryAfterSeconds(d time.Duration) int {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

// WriteProxyError translates a forwarding error into its HTTP response.
func WriteProxyError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		noRoute     *registry.NoRouteError
		badToken    *auth.InvalidTokenError
		circuitOpen *health.CircuitOpenError
		unhealthy   *ServiceUnhealthyError
		timeout     *UpstreamTimeoutError
		network     *UpstreamNetworkError
	)

	switch {
	case errors.As(err, &noRoute):
		WriteError(w, r, http.StatusNotFound, ErrTypeNoRoute, "no service is registered for "+noRoute.Path)
	case errors.As(err, &badToken):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		WriteError(w, r, http.StatusUnauthorized, ErrTypeInvalidToken, badToken.Reason)
	case errors.As(err, &circuitOpen):
		WriteRetryableError(w, r, http.StatusServiceUnavailable, ErrTypeCircuitOpen,
			"service "+circuitOpen.Service+" is temporarily unavailable", circuitOpen.RetryAfter)
	case errors.As(err, &unhealthy):
		WriteRetryableError(w, r, http.StatusServiceUnavailable, ErrTypeServiceUnhealthy,
			"service "+unhealthy.Service+" is unhealthy", time.Second)
	case errors.As(err, &timeout):
		WriteError(w, r, http.StatusGatewayTimeout, ErrTypeUpstreamTimeout,
			"service "+timeout.Service+" did not respond in time")
	case errors.As(err, &network):
		WriteError(w, r, http.StatusBadGateway, ErrTypeUpstreamUnavailable,
			"service "+network.Service+" is unreachable")
	case IsBodyTooLargeError(err):
		WriteError(w, r, http.StatusRequestEntityTooLarge, ErrTypeRequestTooLarge,
			"request body exceeds the maximum allowed size")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unclassified forwarding error")
		WriteError(w, r, http.StatusInternalServerError, ErrTypeInternal, "internal gateway error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
