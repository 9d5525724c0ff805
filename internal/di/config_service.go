package di

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/omarluq/shopgate/internal/config"
)

// ConfigService holds the validated configuration. It is immutable for the
// life of the process.
type ConfigService struct {
	Config *config.Config
	path   string
}

// Path returns the file the configuration was loaded from.
func (c *ConfigService) Path() string {
	return c.path
}

// NewConfig loads and validates the configuration file.
func NewConfig(i do.Injector) (*ConfigService, error) {
	path := do.MustInvokeNamed[string](i, ConfigPathKey)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &ConfigService{Config: cfg, path: path}, nil
}
