package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/shopgate/internal/auth"
	"github.com/omarluq/shopgate/internal/config"
)

func TestAPIKeyAuthenticator(t *testing.T) {
	t.Parallel()

	a := auth.NewAPIKeyAuthenticator("ops-key-12345")

	tests := []struct {
		name    string
		key     string
		wantErr string
		valid   bool
	}{
		{name: "valid", key: "ops-key-12345", valid: true},
		{name: "wrong", key: "nope", wantErr: "invalid x-api-key"},
		{name: "missing", key: "", wantErr: "missing x-api-key header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/gateway/services", http.NoBody)
			if tt.key != "" {
				req.Header.Set(auth.APIKeyHeader, tt.key)
			}
			res := a.Validate(req)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, auth.TypeAPIKey, res.Type)
			assert.Equal(t, tt.wantErr, res.Error)
			assert.Equal(t, tt.valid, a.ValidateResult(req).IsOk())
		})
	}
}

func TestParseBearer(t *testing.T) {
	t.Parallel()

	token, err := auth.ParseBearer("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	token, err = auth.ParseBearer("bearer   abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	for _, bad := range []string{"", "Bearer", "Bearer ", "Bearerabc", "Token abc", "Bearer a b"} {
		_, err := auth.ParseBearer(bad)
		var invalidErr *auth.InvalidTokenError
		require.ErrorAs(t, err, &invalidErr, "header %q", bad)
		assert.Equal(t, auth.ReasonMalformed, invalidErr.Reason)
	}
}

func TestRoleAuthenticatorAndChain(t *testing.T) {
	t.Parallel()

	cfg := config.AuthConfig{JWTSecret: testSecret}
	e, err := auth.NewExtractor(&cfg, nil, nil, auth.WithClock(func() time.Time { return baseTime }))
	require.NoError(t, err)

	chain := auth.NewChainAuthenticator(
		auth.NewAPIKeyAuthenticator("ops-key"),
		auth.NewRoleAuthenticator(e, "admin"),
	)
	assert.Equal(t, 2, chain.Len())
	assert.Equal(t, auth.TypeNone, chain.Type())

	adminToken := signHMAC(t, jwa.HS256, testSecret, claims{
		subject: "op-1",
		exp:     baseTime.Add(time.Hour),
		extra:   map[string]any{"roles": []string{"admin"}},
	})
	customerToken := signHMAC(t, jwa.HS256, testSecret, claims{
		subject: "cust-1",
		exp:     baseTime.Add(time.Hour),
		extra:   map[string]any{"roles": []string{"customer"}},
	})

	newReq := func(apiKey, token string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/gateway/health", http.NoBody)
		if apiKey != "" {
			req.Header.Set(auth.APIKeyHeader, apiKey)
		}
		if token != "" {
			req.Header.Set("Authorization", bearer(token))
		}
		return req
	}

	res := chain.Validate(newReq("ops-key", ""))
	assert.True(t, res.Valid)
	assert.Equal(t, auth.TypeAPIKey, res.Type)

	res = chain.Validate(newReq("", adminToken))
	assert.True(t, res.Valid)
	assert.Equal(t, "op-1", res.UserID)

	res = chain.Validate(newReq("", customerToken))
	assert.False(t, res.Valid)
	assert.Equal(t, "token lacks required role", res.Error)

	res = chain.Validate(newReq("", ""))
	assert.False(t, res.Valid)
	assert.Equal(t, auth.TypeNone, res.Type)

	result := chain.ValidateResult(newReq("wrong", ""))
	assert.True(t, result.IsError())

	empty := auth.NewChainAuthenticator()
	assert.Equal(t, "no authentication configured", empty.Validate(newReq("", "")).Error)
}

func TestUserContextRoundTripsThroughContext(t *testing.T) {
	t.Parallel()

	_, ok := auth.UserFrom(context.Background())
	assert.False(t, ok)

	ctx := auth.WithUser(context.Background(), auth.UserContext{UserID: "u1"})
	u, ok := auth.UserFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", u.UserID)
}

func TestInvalidTokenErrorMessage(t *testing.T) {
	t.Parallel()

	err := &auth.InvalidTokenError{Reason: auth.ReasonExpired}
	assert.Equal(t, "invalid token: token expired", err.Error())
	assert.NoError(t, err.Unwrap())
}
