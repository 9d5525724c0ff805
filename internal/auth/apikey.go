package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/samber/mo"
)

// APIKeyHeader carries the operator API key.
const APIKeyHeader = "x-api-key"

// APIKeyAuthenticator validates the x-api-key header against a fixed key.
// Both sides are hashed first so the comparison is constant time regardless
// of key length.
type APIKeyAuthenticator struct {
	expectedHash [32]byte
}

// NewAPIKeyAuthenticator creates an authenticator for expectedKey.
func NewAPIKeyAuthenticator(expectedKey string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{
		// #nosec G401 -- SHA-256 is appropriate for high-entropy API keys (not passwords)
		expectedHash: sha256.Sum256([]byte(expectedKey)),
	}
}

// Validate checks the x-api-key header.
func (a *APIKeyAuthenticator) Validate(r *http.Request) Result {
	provided := r.Header.Get(APIKeyHeader)
	if provided == "" {
		return Result{Type: TypeAPIKey, Error: "missing x-api-key header"}
	}

	// #nosec G401 -- SHA-256 is appropriate for high-entropy API keys (not passwords)
	providedHash := sha256.Sum256([]byte(provided))
	if subtle.ConstantTimeCompare(providedHash[:], a.expectedHash[:]) != 1 {
		return Result{Type: TypeAPIKey, Error: "invalid x-api-key"}
	}

	return Result{Valid: true, Type: TypeAPIKey}
}

// Type returns TypeAPIKey.
func (a *APIKeyAuthenticator) Type() Type {
	return TypeAPIKey
}

// ValidateResult is Validate as a mo.Result.
func (a *APIKeyAuthenticator) ValidateResult(r *http.Request) mo.Result[Result] {
	return toResult(a.Validate(r))
}
