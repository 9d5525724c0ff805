package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/shopgate/internal/config"
	"github.com/omarluq/shopgate/internal/registry"
)

func TestBuildDescriptorsResolvesDefaults(t *testing.T) {
	t.Parallel()

	noStrip := false
	cfg := validConfig()
	cfg.Services[0].PublicPaths = []string{"/auth/login/"}
	cfg.Services[1].PathPrefix = "/users/"
	cfg.Services[1].TimeoutMS = 1500
	cfg.Services[1].HealthPath = "/ready"
	cfg.Services[1].StripPrefix = &noStrip
	cfg.Services[1].FailureThreshold = 3
	cfg.Services[1].RecoveryTimeoutMS = 10000
	cfg.Services[1].HealthTTLMS = 2000

	descriptors, err := config.BuildDescriptors(cfg)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	authSvc := descriptors[0]
	assert.Equal(t, "auth-service", authSvc.Name)
	assert.Equal(t, registry.AccessPublic, authSvc.Access)
	assert.Equal(t, registry.DefaultTimeout, authSvc.Timeout)
	assert.Equal(t, registry.DefaultHealthPath, authSvc.HealthPath)
	assert.Equal(t, []string{"/auth/login"}, authSvc.PublicPaths)
	assert.True(t, authSvc.StripPrefix)
	assert.Zero(t, authSvc.RecoveryTimeout)
	assert.Equal(t, "auth:8081", authSvc.BaseURL.Host)

	users := descriptors[1]
	assert.Equal(t, "/users", users.PathPrefix)
	assert.Equal(t, registry.AccessProtected, users.Access)
	assert.Equal(t, 1500*time.Millisecond, users.Timeout)
	assert.Equal(t, "/ready", users.HealthPath)
	assert.False(t, users.StripPrefix)
	assert.Equal(t, 3, users.FailureThreshold)
	assert.Equal(t, 10*time.Second, users.RecoveryTimeout)
	assert.Equal(t, 2*time.Second, users.HealthTTL)
}

func TestBuildRegistry(t *testing.T) {
	t.Parallel()

	reg, err := config.BuildRegistry(validConfig())
	require.NoError(t, err)

	svc, err := reg.Resolve("/users/me")
	require.NoError(t, err)
	assert.Equal(t, "user-service", svc.Name)
	assert.Equal(t, registry.AccessProtected, svc.Classify("/users/me"))

	svc, err = reg.Resolve("/auth/login")
	require.NoError(t, err)
	assert.Equal(t, registry.AccessPublic, svc.Classify("/auth/login"))
}

func TestBuildDescriptorsBadURL(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Services[0].BaseURL = "http://[::1"
	_, err := config.BuildDescriptors(cfg)
	require.Error(t, err)
}

func TestAuthConfigGetters(t *testing.T) {
	t.Parallel()

	var a config.AuthConfig
	assert.Equal(t, config.AlgHS256, a.GetAlgorithm())
	assert.Equal(t, "sub", a.GetUserIDClaim())
	assert.Equal(t, time.Minute, a.GetTokenCacheTTL())
	assert.Zero(t, a.GetClockSkew())
	assert.False(t, a.HasKeySource())

	a = config.AuthConfig{Algorithm: "hs384", UserIDClaim: "uid", ClockSkewMS: 500, JWKSFile: "keys.json"}
	assert.Equal(t, config.AlgHS384, a.GetAlgorithm())
	assert.Equal(t, "uid", a.GetUserIDClaim())
	assert.Equal(t, 500*time.Millisecond, a.GetClockSkew())
	assert.True(t, a.HasKeySource())
}

func TestServerConfigOptions(t *testing.T) {
	t.Parallel()

	var s config.ServerConfig
	assert.True(t, s.GetMaxConcurrentOption().IsAbsent())
	assert.True(t, s.GetMaxBodyBytesOption().IsAbsent())
	assert.Equal(t, config.DefaultListen, s.GetListen())
	assert.False(t, s.RateLimit.IsEnabled())
	assert.Equal(t, config.DefaultRateLimitBurst, s.RateLimit.GetBurst())
	assert.Equal(t, 5*time.Minute, s.RateLimit.GetIdleTTL())

	s.MaxBodyBytes = 1 << 20
	assert.Equal(t, int64(1<<20), s.GetMaxBodyBytesOption().MustGet())
}

func TestLoggingParseLevel(t *testing.T) {
	t.Parallel()

	l := config.LoggingConfig{Level: "WARN"}
	assert.Equal(t, "warn", l.ParseLevel().String())

	l.Level = "nonsense"
	assert.Equal(t, "info", l.ParseLevel().String())

	l.EnableDebug()
	assert.Equal(t, "debug", l.ParseLevel().String())
	assert.True(t, l.LogHeaders)
}
