// Package config provides configuration loading and parsing for shopgate.
package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"github.com/omarluq/shopgate/internal/cache"
	"github.com/omarluq/shopgate/internal/health"
)

// Log level constants.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// JWT signing algorithms accepted for the shared secret.
const (
	AlgHS256 = "HS256"
	AlgHS384 = "HS384"
	AlgHS512 = "HS512"
)

// Defaults applied by the getters below.
const (
	DefaultListen          = "127.0.0.1:8080"
	DefaultUserIDClaim     = "sub"
	DefaultTokenCacheTTLMS = 60000
	DefaultRateLimitBurst  = 20
	DefaultRateLimitIdleMS = 300000
)

// Config represents the complete shopgate configuration.
// It is loaded once at startup and never mutated afterwards.
type Config struct {
	Services []ServiceConfig `yaml:"services" toml:"services"`
	Logging  LoggingConfig   `yaml:"logging" toml:"logging"`
	Auth     AuthConfig      `yaml:"auth" toml:"auth"`
	Server   ServerConfig    `yaml:"server" toml:"server"`
	Health   health.Config   `yaml:"health" toml:"health"`
	Cache    cache.Config    `yaml:"cache" toml:"cache"`
}

// ServerConfig defines server-level settings.
type ServerConfig struct {
	Listen        string          `yaml:"listen" toml:"listen"`
	RateLimit     RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	MaxBodyBytes  int64           `yaml:"max_body_bytes" toml:"max_body_bytes"`
	MaxConcurrent int             `yaml:"max_concurrent" toml:"max_concurrent"`
	EnableHTTP2   bool            `yaml:"enable_http2" toml:"enable_http2"` // Enable HTTP/2 cleartext (h2c) support
	// TrustForwardedFor takes the client IP from X-Forwarded-For. Enable only
	// behind a load balancer that overwrites the header.
	TrustForwardedFor bool `yaml:"trust_forwarded_for" toml:"trust_forwarded_for"`
}

// GetMaxConcurrentOption returns None when concurrency is unlimited.
func (s *ServerConfig) GetMaxConcurrentOption() mo.Option[int] {
	if s.MaxConcurrent <= 0 {
		return mo.None[int]()
	}
	return mo.Some(s.MaxConcurrent)
}

// GetMaxBodyBytesOption returns None when request bodies are unbounded.
func (s *ServerConfig) GetMaxBodyBytesOption() mo.Option[int64] {
	if s.MaxBodyBytes <= 0 {
		return mo.None[int64]()
	}
	return mo.Some(s.MaxBodyBytes)
}

// GetListen returns the listen address with default fallback.
func (s *ServerConfig) GetListen() string {
	if s.Listen == "" {
		return DefaultListen
	}
	return s.Listen
}

// RateLimitConfig defines the per-client-IP token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
	// IdleTTLMS drops a client's bucket after this long without requests.
	IdleTTLMS int `yaml:"idle_ttl_ms" toml:"idle_ttl_ms"`
}

// IsEnabled returns true when a positive rate is configured.
func (r *RateLimitConfig) IsEnabled() bool {
	return r.RequestsPerSecond > 0
}

// GetBurst returns the bucket size with default fallback.
func (r *RateLimitConfig) GetBurst() int {
	if r.Burst <= 0 {
		return DefaultRateLimitBurst
	}
	return r.Burst
}

// GetIdleTTL returns how long an idle client bucket is kept.
func (r *RateLimitConfig) GetIdleTTL() time.Duration {
	if r.IdleTTLMS <= 0 {
		return time.Duration(DefaultRateLimitIdleMS) * time.Millisecond
	}
	return time.Duration(r.IdleTTLMS) * time.Millisecond
}

// AuthConfig defines how bearer tokens are verified locally.
//
//nolint:govet // Field order follows the config file layout
type AuthConfig struct {
	// JWTSecret is the HMAC shared secret (supports ${ENV_VAR}).
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	// JWKSFile is a JSON Web Key Set on disk. It is watched for rotation.
	JWKSFile string `yaml:"jwks_file" toml:"jwks_file"`
	// Algorithm applies to JWTSecret. Default: HS256.
	Algorithm   string `yaml:"algorithm" toml:"algorithm"`
	Issuer      string `yaml:"issuer" toml:"issuer"`
	Audience    string `yaml:"audience" toml:"audience"`
	UserIDClaim string `yaml:"user_id_claim" toml:"user_id_claim"`

	ClockSkewMS     int `yaml:"clock_skew_ms" toml:"clock_skew_ms"`
	TokenCacheTTLMS int `yaml:"token_cache_ttl_ms" toml:"token_cache_ttl_ms"`

	// AdminAPIKey guards the /gateway endpoints. Empty disables the check
	// unless AdminRole is set.
	AdminAPIKey string `yaml:"admin_api_key" toml:"admin_api_key"`
	// AdminRole lets bearer tokens carrying this role reach /gateway too.
	AdminRole string `yaml:"admin_role" toml:"admin_role"`
}

// IsAdminGuarded returns true when the operator endpoints require credentials.
func (a *AuthConfig) IsAdminGuarded() bool {
	return a.AdminAPIKey != "" || a.AdminRole != ""
}

// HasKeySource returns true if tokens can be verified at all.
func (a *AuthConfig) HasKeySource() bool {
	return a.JWTSecret != "" || a.JWKSFile != ""
}

// GetAlgorithm returns the HMAC algorithm with default fallback.
func (a *AuthConfig) GetAlgorithm() string {
	if a.Algorithm == "" {
		return AlgHS256
	}
	return strings.ToUpper(a.Algorithm)
}

// GetUserIDClaim returns the claim carrying the user ID.
func (a *AuthConfig) GetUserIDClaim() string {
	if a.UserIDClaim == "" {
		return DefaultUserIDClaim
	}
	return a.UserIDClaim
}

// GetClockSkew returns the tolerated clock skew for exp/nbf checks.
func (a *AuthConfig) GetClockSkew() time.Duration {
	if a.ClockSkewMS <= 0 {
		return 0
	}
	return time.Duration(a.ClockSkewMS) * time.Millisecond
}

// GetTokenCacheTTL returns the upper bound on how long a verified token is cached.
func (a *AuthConfig) GetTokenCacheTTL() time.Duration {
	if a.TokenCacheTTLMS <= 0 {
		return time.Duration(DefaultTokenCacheTTLMS) * time.Millisecond
	}
	return time.Duration(a.TokenCacheTTLMS) * time.Millisecond
}

// GetIssuerOption returns None when the issuer is not checked.
func (a *AuthConfig) GetIssuerOption() mo.Option[string] {
	if a.Issuer == "" {
		return mo.None[string]()
	}
	return mo.Some(a.Issuer)
}

// GetAudienceOption returns None when the audience is not checked.
func (a *AuthConfig) GetAudienceOption() mo.Option[string] {
	if a.Audience == "" {
		return mo.None[string]()
	}
	return mo.Some(a.Audience)
}

// ServiceConfig defines one backend service behind the gateway.
//
//nolint:govet // Field order follows the config file layout
type ServiceConfig struct {
	Name       string `yaml:"name" toml:"name"`
	PathPrefix string `yaml:"path_prefix" toml:"path_prefix"`
	BaseURL    string `yaml:"base_url" toml:"base_url"` // supports ${ENV_VAR}
	TimeoutMS  int    `yaml:"timeout_ms" toml:"timeout_ms"`
	HealthPath string `yaml:"health_path" toml:"health_path"`

	// Access is "public" or "protected" (default).
	Access         string   `yaml:"access" toml:"access"`
	PublicPaths    []string `yaml:"public_paths" toml:"public_paths"`
	ProtectedPaths []string `yaml:"protected_paths" toml:"protected_paths"`

	// StripPrefix defaults to true.
	StripPrefix *bool `yaml:"strip_prefix" toml:"strip_prefix"`

	// Zero values fall back to the health section.
	FailureThreshold  int `yaml:"failure_threshold" toml:"failure_threshold"`
	RecoveryTimeoutMS int `yaml:"recovery_timeout_ms" toml:"recovery_timeout_ms"`
	HealthTTLMS       int `yaml:"health_ttl_ms" toml:"health_ttl_ms"`
}

// GetTimeoutOption returns None when the default forwarding timeout applies.
func (s *ServiceConfig) GetTimeoutOption() mo.Option[time.Duration] {
	if s.TimeoutMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(s.TimeoutMS) * time.Millisecond)
}

// IsStripPrefix returns whether the path prefix is removed before forwarding.
func (s *ServiceConfig) IsStripPrefix() bool {
	if s.StripPrefix == nil {
		return true
	}
	return *s.StripPrefix
}

// HasProtectedRoutes reports whether any path of the service needs a token.
func (s *ServiceConfig) HasProtectedRoutes() bool {
	return !strings.EqualFold(s.Access, "public") || len(s.ProtectedPaths) > 0
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, console
	Output string `yaml:"output" toml:"output"` // stdout, stderr, or file path
	Pretty bool   `yaml:"pretty" toml:"pretty"` // enable colored console output
	// LogHeaders adds inbound request headers to debug request logs.
	// Authorization and x-api-key are always redacted.
	LogHeaders bool `yaml:"log_headers" toml:"log_headers"`
}

// ParseLevel converts a string log level to zerolog.Level.
// Returns zerolog.InfoLevel if the level string is invalid.
func (l *LoggingConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// EnableDebug switches to debug level with header logging. Used by --debug.
func (l *LoggingConfig) EnableDebug() {
	l.Level = LevelDebug
	l.LogHeaders = true
}
