package di

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/omarluq/shopgate/internal/config"
	"github.com/omarluq/shopgate/internal/registry"
)

// RegistryService wraps the read-only service registry.
type RegistryService struct {
	Registry *registry.Registry
}

// NewRegistry builds the registry from the services section.
func NewRegistry(i do.Injector) (*RegistryService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)

	reg, err := config.BuildRegistry(cfgSvc.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to build service registry: %w", err)
	}

	return &RegistryService{Registry: reg}, nil
}
