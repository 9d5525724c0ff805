package cache

import (
	"errors"
	"fmt"
)

// Mode represents the cache operating mode.
type Mode string

const (
	// ModeSingle uses a local Ristretto cache (default).
	ModeSingle Mode = "single"

	// ModeDisabled uses the noop cache. Every token is verified on every request.
	ModeDisabled Mode = "disabled"
)

// Config defines cache configuration.
type Config struct {
	Mode      Mode            `yaml:"mode" toml:"mode"`
	Ristretto RistrettoConfig `yaml:"ristretto" toml:"ristretto"`
}

// RistrettoConfig configures the Ristretto local cache.
type RistrettoConfig struct {
	// NumCounters should be about 10x the expected number of live tokens.
	NumCounters int64 `yaml:"num_counters" toml:"num_counters"`

	// MaxCost is the byte budget for cached values.
	MaxCost int64 `yaml:"max_cost" toml:"max_cost"`

	BufferItems int64 `yaml:"buffer_items" toml:"buffer_items"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSingle:
		if c.Ristretto.MaxCost <= 0 {
			return errors.New("cache: ristretto.max_cost must be positive")
		}
		if c.Ristretto.NumCounters <= 0 {
			return errors.New("cache: ristretto.num_counters must be positive")
		}
	case ModeDisabled:
	case "":
		return errors.New("cache: mode is required")
	default:
		return fmt.Errorf("cache: unknown mode %q", c.Mode)
	}
	return nil
}

// DefaultRistrettoConfig sizes the cache for roughly 100K tokens in 16 MB.
func DefaultRistrettoConfig() RistrettoConfig {
	return RistrettoConfig{
		NumCounters: 1_000_000,
		MaxCost:     16 << 20,
		BufferItems: 64,
	}
}

// DefaultConfig returns single mode with DefaultRistrettoConfig.
func DefaultConfig() Config {
	return Config{
		Mode:      ModeSingle,
		Ristretto: DefaultRistrettoConfig(),
	}
}
