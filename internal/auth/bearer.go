package auth

import (
	"context"
	"net/http"
	"strings"
)

// ParseBearer extracts the token from an Authorization header value.
// The scheme is matched case-insensitively.
func ParseBearer(header string) (string, error) {
	if len(header) < 7 || !strings.EqualFold(header[:6], "bearer") || header[6] != ' ' {
		return "", invalid(ReasonMalformed, nil)
	}

	token := strings.TrimSpace(header[7:])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", invalid(ReasonMalformed, nil)
	}
	return token, nil
}

// RoleAuthenticator accepts requests whose bearer token carries a role.
// It lets operators reach /gateway with a token instead of the shared key.
type RoleAuthenticator struct {
	extractor *Extractor
	role      string
}

// NewRoleAuthenticator creates an authenticator requiring role.
func NewRoleAuthenticator(extractor *Extractor, role string) *RoleAuthenticator {
	return &RoleAuthenticator{extractor: extractor, role: role}
}

// Validate verifies the bearer token and checks the role.
func (a *RoleAuthenticator) Validate(r *http.Request) Result {
	user, err := a.extractor.Extract(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		return Result{Type: TypeBearer, Error: err.Error()}
	}

	u, ok := user.Get()
	if !ok {
		return Result{Type: TypeBearer, Error: "missing authorization header"}
	}
	if !u.HasRole(a.role) {
		return Result{Type: TypeBearer, Error: "token lacks required role"}
	}
	return Result{Valid: true, Type: TypeBearer, UserID: u.UserID}
}

// Type returns TypeBearer.
func (a *RoleAuthenticator) Type() Type {
	return TypeBearer
}

// userKey is the context key for the verified user.
type userKey struct{}

// WithUser stores a verified user in ctx.
func WithUser(ctx context.Context, u UserContext) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the verified user stored in ctx, if any.
func UserFrom(ctx context.Context) (UserContext, bool) {
	u, ok := ctx.Value(userKey{}).(UserContext)
	return u, ok
}
