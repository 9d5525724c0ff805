package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/omarluq/shopgate/internal/registry"
)

// Path prefixes served by the gateway itself.
var reservedPrefixes = []string{"/gateway", "/health"}

var validAlgorithms = map[string]bool{
	AlgHS256: true,
	AlgHS384: true,
	AlgHS512: true,
}

var validAccess = map[string]bool{
	"":                               true, // Empty defaults to protected
	string(registry.AccessPublic):    true,
	string(registry.AccessProtected): true,
}

// Valid logging levels.
var validLogLevels = map[string]bool{
	"":      true, // Empty defaults to info
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid logging formats.
var validLogFormats = map[string]bool{
	"":        true, // Empty defaults to json
	"json":    true,
	"console": true,
	"text":    true, // Alias for console
	"pretty":  true,
}

// Validate checks the configuration for errors.
// Returns a ValidationError containing all errors found, or nil if valid.
func (c *Config) Validate() error {
	errs := &ValidationError{}

	validateServer(c, errs)
	validateServices(c, errs)
	validateAuth(c, errs)
	validateHealth(c, errs)
	validateLogging(c, errs)

	if err := c.Cache.Validate(); err != nil {
		errs.Add(err.Error())
	}

	return errs.ToError()
}

func validateServer(c *Config, errs *ValidationError) {
	if c.Server.Listen == "" {
		errs.Add("server.listen is required")
	} else {
		validateListenAddress(c.Server.Listen, errs)
	}

	if c.Server.MaxConcurrent < 0 {
		errs.Add("server.max_concurrent must be >= 0")
	}
	if c.Server.MaxBodyBytes < 0 {
		errs.Add("server.max_body_bytes must be >= 0")
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		errs.Add("server.rate_limit.requests_per_second must be >= 0")
	}
	if c.Server.RateLimit.Burst < 0 {
		errs.Add("server.rate_limit.burst must be >= 0")
	}
}

// validateListenAddress validates a listen address in host:port format.
func validateListenAddress(addr string, errs *ValidationError) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		errs.Addf("server.listen must be in host:port format (got %q)", addr)
		return
	}
	if host != "" && net.ParseIP(host) == nil && strings.ContainsAny(host, " \t\n") {
		errs.Add("server.listen host contains invalid characters")
	}
	if port == "" {
		errs.Add("server.listen port is required")
	}
}

func validateServices(c *Config, errs *ValidationError) {
	if len(c.Services) == 0 {
		errs.Add("at least one service is required")
		return
	}

	seenNames := make(map[string]bool, len(c.Services))
	for i := range c.Services {
		validateService(&c.Services[i], i, seenNames, errs)
	}
}

func validateService(s *ServiceConfig, index int, seenNames map[string]bool, errs *ValidationError) {
	prefix := func(field string) string {
		if s.Name != "" {
			return fmt.Sprintf("service[%s].%s", s.Name, field)
		}
		return fmt.Sprintf("services[%d].%s", index, field)
	}

	if s.Name == "" {
		errs.Addf("services[%d].name is required", index)
	} else {
		if seenNames[s.Name] {
			errs.Addf("duplicate service name: %s", s.Name)
		}
		seenNames[s.Name] = true
	}

	validatePathPrefix(s.PathPrefix, prefix("path_prefix"), errs)
	validateBaseURL(s.BaseURL, prefix("base_url"), errs)

	if !validAccess[strings.ToLower(s.Access)] {
		errs.Addf("%s is invalid (got %q, valid: public, protected)", prefix("access"), s.Access)
	}
	for _, p := range s.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			errs.Addf("%s entries must start with / (got %q)", prefix("public_paths"), p)
		}
	}
	for _, p := range s.ProtectedPaths {
		if !strings.HasPrefix(p, "/") {
			errs.Addf("%s entries must start with / (got %q)", prefix("protected_paths"), p)
		}
	}

	if s.HealthPath != "" && !strings.HasPrefix(s.HealthPath, "/") {
		errs.Addf("%s must start with / (got %q)", prefix("health_path"), s.HealthPath)
	}
	if s.TimeoutMS < 0 {
		errs.Addf("%s must be >= 0", prefix("timeout_ms"))
	}
	if s.FailureThreshold < 0 {
		errs.Addf("%s must be >= 0", prefix("failure_threshold"))
	}
	if s.RecoveryTimeoutMS < 0 {
		errs.Addf("%s must be >= 0", prefix("recovery_timeout_ms"))
	}
	if s.HealthTTLMS < 0 {
		errs.Addf("%s must be >= 0", prefix("health_ttl_ms"))
	}
}

func validatePathPrefix(p, field string, errs *ValidationError) {
	if p == "" {
		errs.Addf("%s is required", field)
		return
	}
	if !strings.HasPrefix(p, "/") {
		errs.Addf("%s must start with / (got %q)", field, p)
		return
	}
	normalized := registry.NormalizePrefix(p)
	for _, reserved := range reservedPrefixes {
		if normalized == reserved || strings.HasPrefix(normalized, reserved+"/") {
			errs.Addf("%s %q is reserved for the gateway", field, p)
		}
	}
}

func validateBaseURL(raw, field string, errs *ValidationError) {
	if raw == "" {
		errs.Addf("%s is required", field)
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		errs.Addf("%s is not a valid URL: %v", field, err)
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		errs.Addf("%s must use http or https (got %q)", field, raw)
	}
	if u.Host == "" {
		errs.Addf("%s must include a host (got %q)", field, raw)
	}
}

func validateAuth(c *Config, errs *ValidationError) {
	if c.Auth.JWTSecret != "" && !validAlgorithms[c.Auth.GetAlgorithm()] {
		errs.Addf("auth.algorithm is invalid (got %q, valid: HS256, HS384, HS512)", c.Auth.Algorithm)
	}
	if c.Auth.ClockSkewMS < 0 {
		errs.Add("auth.clock_skew_ms must be >= 0")
	}
	if c.Auth.TokenCacheTTLMS < 0 {
		errs.Add("auth.token_cache_ttl_ms must be >= 0")
	}

	if c.Auth.HasKeySource() {
		return
	}
	for i := range c.Services {
		if c.Services[i].HasProtectedRoutes() {
			errs.Add("auth.jwt_secret or auth.jwks_file is required when any route is protected")
			return
		}
	}
}

func validateHealth(c *Config, errs *ValidationError) {
	h := &c.Health
	if h.TTLMS < 0 {
		errs.Add("health.ttl_ms must be >= 0")
	}
	if h.ProbeTimeoutMS < 0 {
		errs.Add("health.probe_timeout_ms must be >= 0")
	}
	if h.CircuitBreaker.FailureThreshold < 0 {
		errs.Add("health.circuit_breaker.failure_threshold must be >= 0")
	}
	if h.CircuitBreaker.RecoveryTimeoutMS < 0 {
		errs.Add("health.circuit_breaker.recovery_timeout_ms must be >= 0")
	}
	if h.HealthCheck.IntervalMS < 0 {
		errs.Add("health.health_check.interval_ms must be >= 0")
	}
	if h.HealthCheck.MaxRefreshesPerTick < 0 {
		errs.Add("health.health_check.max_refreshes_per_tick must be >= 0")
	}
}

func validateLogging(c *Config, errs *ValidationError) {
	if !validLogLevels[c.Logging.Level] {
		errs.Addf("logging.level is invalid (got %q, valid: debug, info, warn, error)",
			c.Logging.Level)
	}
	if !validLogFormats[c.Logging.Format] {
		errs.Addf("logging.format is invalid (got %q, valid: json, console, text, pretty)",
			c.Logging.Format)
	}
}
