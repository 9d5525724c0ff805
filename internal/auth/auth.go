// Package auth verifies caller identity at the gateway edge.
//
// Bearer tokens are JWTs verified locally against an HMAC shared secret
// and/or a JSON Web Key Set, so no request ever waits on the auth service.
// Operator endpoints are additionally guarded by an admin API key.
package auth

import (
	"fmt"
	"net/http"
	"time"
)

// Type represents the authentication method used.
type Type string

const (
	// TypeAPIKey represents x-api-key header authentication.
	TypeAPIKey Type = "api_key"
	// TypeBearer represents Authorization: Bearer token authentication.
	TypeBearer Type = "bearer"
	// TypeNone represents no authentication or failed auth with no valid type.
	TypeNone Type = "none"
)

// Result contains the outcome of an authentication attempt.
type Result struct {
	Type  Type
	Error string
	// UserID is set when a bearer token authenticated the request.
	UserID string
	Valid  bool
}

// Authenticator defines the interface for request-level authentication.
type Authenticator interface {
	Validate(r *http.Request) Result
	Type() Type
}

// UserContext is the identity carried by a verified token.
type UserContext struct {
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
}

// HasRole reports whether the user carries role.
func (u UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// InvalidTokenError is returned for a malformed, unverifiable, expired or
// incomplete bearer token. It maps to HTTP 401.
type InvalidTokenError struct {
	Err    error
	Reason string
}

func (e *InvalidTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid token: %s: %v", e.Reason, e.Err)
	}
	return "invalid token: " + e.Reason
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// Invalid token reasons. They are safe to show to clients.
const (
	ReasonMissing       = "missing bearer token"
	ReasonMalformed     = "malformed authorization header"
	ReasonExpired       = "token expired"
	ReasonMissingExpiry = "missing exp claim"
	ReasonNotYetValid   = "token not yet valid"
	ReasonIssuer        = "invalid issuer"
	ReasonAudience      = "invalid audience"
	ReasonSignature     = "signature verification failed"
	ReasonMissingUserID = "missing user id claim"
	ReasonNotConfigured = "token verification is not configured"
)

func invalid(reason string, err error) *InvalidTokenError {
	return &InvalidTokenError{Reason: reason, Err: err}
}
