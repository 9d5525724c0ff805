// Package health tracks backend availability for the gateway.
//
// The package implements:
//   - Circuit breaker state machine (CLOSED -> OPEN -> HALF-OPEN -> CLOSED), one per service
//   - A TTL status cache fed by deduplicated health probes and forwarding outcomes
//   - A background checker that refreshes stale or unhealthy records
//
// Circuit breakers stop forwarding to a backend that keeps failing, giving it
// time to recover before a single probing request is let through again.
package health

import "time"

// Default configuration values.
const (
	DefaultFailureThreshold  = 5     // consecutive failures to open circuit
	DefaultRecoveryTimeoutMS = 30000 // 30 seconds before half-open
	DefaultTTLMS             = 10000 // cached status validity window
	DefaultProbeTimeoutMS    = 3000  // probe deadline, independent of forwarding timeouts
	DefaultHealthCheckMS     = 10000 // 10 seconds between background refreshes
	DefaultHealthEnabled     = true  // background refresh enabled by default
)

// CircuitBreakerConfig defines circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold" toml:"failure_threshold"`

	// RecoveryTimeoutMS is how long the circuit stays open before a single
	// probing request is admitted. Default: 30000 (30 seconds)
	RecoveryTimeoutMS int `yaml:"recovery_timeout_ms" toml:"recovery_timeout_ms"`
}

// GetFailureThreshold returns the configured failure threshold or default 5.
func (c *CircuitBreakerConfig) GetFailureThreshold() int {
	if c.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return c.FailureThreshold
}

// GetRecoveryTimeout returns the recovery timeout as time.Duration.
func (c *CircuitBreakerConfig) GetRecoveryTimeout() time.Duration {
	if c.RecoveryTimeoutMS <= 0 {
		return time.Duration(DefaultRecoveryTimeoutMS) * time.Millisecond
	}
	return time.Duration(c.RecoveryTimeoutMS) * time.Millisecond
}

// CheckConfig defines background health refresh behavior.
type CheckConfig struct {
	Enabled    *bool `yaml:"enabled" toml:"enabled"`
	IntervalMS int   `yaml:"interval_ms" toml:"interval_ms"`
	// MaxRefreshesPerTick caps background refreshes per cycle. Services
	// over the cap wait for the next tick. Zero means no cap.
	MaxRefreshesPerTick int `yaml:"max_refreshes_per_tick" toml:"max_refreshes_per_tick"`
}

// GetInterval returns the refresh interval as time.Duration.
// Returns default 10s if not set or negative.
func (c *CheckConfig) GetInterval() time.Duration {
	if c.IntervalMS <= 0 {
		return time.Duration(DefaultHealthCheckMS) * time.Millisecond
	}
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// IsEnabled returns whether background refresh is enabled.
// Returns true by default if not explicitly set.
func (c *CheckConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return DefaultHealthEnabled
	}
	return *c.Enabled
}

// Config combines status cache, circuit breaker and background check settings.
type Config struct {
	HealthCheck    CheckConfig          `yaml:"health_check" toml:"health_check"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" toml:"circuit_breaker"`
	TTLMS          int                  `yaml:"ttl_ms" toml:"ttl_ms"`
	ProbeTimeoutMS int                  `yaml:"probe_timeout_ms" toml:"probe_timeout_ms"`
	// FastFail rejects requests with 503 when the cached status is UNHEALTHY
	// even though the circuit is still closed.
	FastFail bool `yaml:"fast_fail" toml:"fast_fail"`
}

// GetTTL returns the default status TTL.
func (c *Config) GetTTL() time.Duration {
	if c.TTLMS <= 0 {
		return time.Duration(DefaultTTLMS) * time.Millisecond
	}
	return time.Duration(c.TTLMS) * time.Millisecond
}

// GetProbeTimeout returns the probe deadline.
func (c *Config) GetProbeTimeout() time.Duration {
	if c.ProbeTimeoutMS <= 0 {
		return time.Duration(DefaultProbeTimeoutMS) * time.Millisecond
	}
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}
