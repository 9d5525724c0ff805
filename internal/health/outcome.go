package health

import (
	"context"
	"errors"
	"net"
)

// Outcome classifies the result of one forwarded request.
type Outcome int

// Forwarding outcomes.
const (
	// OutcomeSuccess is any backend response below 400.
	OutcomeSuccess Outcome = iota
	// OutcomeClientError is a backend 4xx. It is passed through and does not count against the backend.
	OutcomeClientError
	// OutcomeServerError is a backend response >= 500.
	OutcomeServerError
	// OutcomeTimeout is a forwarding deadline expiry.
	OutcomeTimeout
	// OutcomeNetworkError is any other transport failure.
	OutcomeNetworkError
	// OutcomeRejected means the gateway released an admitted request without dispatching it.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeClientError:
		return "client_error"
	case OutcomeServerError:
		return "server_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeNetworkError:
		return "network_error"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// IsFailure reports whether the outcome counts against the backend.
func (o Outcome) IsFailure() bool {
	return o == OutcomeServerError || o == OutcomeTimeout || o == OutcomeNetworkError
}

// IsExcluded reports whether the outcome is neutral for the circuit breaker.
func (o Outcome) IsExcluded() bool {
	return o == OutcomeClientError || o == OutcomeRejected
}

// Classify maps a backend status code or transport error to an Outcome.
// A non-nil err takes precedence over status.
func Classify(status int, err error) Outcome {
	if err != nil {
		if IsTimeout(err) {
			return OutcomeTimeout
		}
		return OutcomeNetworkError
	}
	switch {
	case status >= 500:
		return OutcomeServerError
	case status >= 400:
		return OutcomeClientError
	default:
		return OutcomeSuccess
	}
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// outcomeError carries an Outcome through gobreaker's done(err) callback.
type outcomeError struct {
	outcome Outcome
}

func (e *outcomeError) Error() string {
	return "health: forwarding " + e.outcome.String()
}

func outcomeToError(o Outcome) error {
	if o == OutcomeSuccess {
		return nil
	}
	return &outcomeError{outcome: o}
}

func isExcludedError(err error) bool {
	var oe *outcomeError
	return errors.As(err, &oe) && oe.outcome.IsExcluded()
}
