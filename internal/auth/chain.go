package auth

import (
	"net/http"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

// ChainAuthenticator tries authenticators in order. The first success wins;
// if all fail, the last error is reported.
type ChainAuthenticator struct {
	authenticators []Authenticator
}

// NewChainAuthenticator creates a chain of authenticators.
func NewChainAuthenticator(authenticators ...Authenticator) *ChainAuthenticator {
	return &ChainAuthenticator{authenticators: authenticators}
}

// Len returns the number of authenticators in the chain.
func (c *ChainAuthenticator) Len() int {
	return len(c.authenticators)
}

// Validate tries each authenticator until one succeeds.
func (c *ChainAuthenticator) Validate(r *http.Request) Result {
	if len(c.authenticators) == 0 {
		return Result{Type: TypeNone, Error: "no authentication configured"}
	}

	result := lo.Reduce(c.authenticators, func(acc Result, a Authenticator, _ int) Result {
		if acc.Valid {
			return acc
		}
		return a.Validate(r)
	}, Result{Type: TypeNone})

	if !result.Valid {
		return Result{Type: TypeNone, Error: result.Error}
	}
	return result
}

// Type returns TypeNone since this is a meta-authenticator.
func (c *ChainAuthenticator) Type() Type {
	return TypeNone
}

// ValidateResult is Validate as a mo.Result.
func (c *ChainAuthenticator) ValidateResult(r *http.Request) mo.Result[Result] {
	return toResult(c.Validate(r))
}

// ValidationError wraps authentication failure details.
type ValidationError struct {
	Type    Type
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError.
func NewValidationError(authType Type, message string) *ValidationError {
	return &ValidationError{Type: authType, Message: message}
}

func toResult(res Result) mo.Result[Result] {
	if res.Valid {
		return mo.Ok(res)
	}
	return mo.Err[Result](NewValidationError(res.Type, res.Error))
}
