package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/omarluq/shopgate/internal/registry"
)

// BuildDescriptors converts the services section into immutable registry
// descriptors with every default resolved. Call Validate first; this only
// reports errors it cannot avoid (unparseable URLs).
func BuildDescriptors(cfg *Config) ([]*registry.ServiceDescriptor, error) {
	out := make([]*registry.ServiceDescriptor, 0, len(cfg.Services))

	for i := range cfg.Services {
		s := &cfg.Services[i]

		base, err := url.Parse(s.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("config: service %s base_url: %w", s.Name, err)
		}

		healthPath := s.HealthPath
		if healthPath == "" {
			healthPath = registry.DefaultHealthPath
		}

		access := registry.AccessProtected
		if strings.EqualFold(s.Access, string(registry.AccessPublic)) {
			access = registry.AccessPublic
		}

		out = append(out, &registry.ServiceDescriptor{
			Name:             s.Name,
			PathPrefix:       registry.NormalizePrefix(s.PathPrefix),
			BaseURL:          base,
			Timeout:          s.GetTimeoutOption().OrElse(registry.DefaultTimeout),
			HealthPath:       healthPath,
			Access:           access,
			PublicPaths:      normalizeAll(s.PublicPaths),
			ProtectedPaths:   normalizeAll(s.ProtectedPaths),
			StripPrefix:      s.IsStripPrefix(),
			FailureThreshold: s.FailureThreshold,
			RecoveryTimeout:  msOrZero(s.RecoveryTimeoutMS),
			HealthTTL:        msOrZero(s.HealthTTLMS),
		})
	}

	return out, nil
}

// BuildRegistry builds the read-only service registry from cfg.
func BuildRegistry(cfg *Config) (*registry.Registry, error) {
	descriptors, err := BuildDescriptors(cfg)
	if err != nil {
		return nil, err
	}
	return registry.New(descriptors...)
}

func normalizeAll(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	return lo.Map(paths, func(p string, _ int) string {
		return registry.NormalizePrefix(p)
	})
}

// msOrZero leaves zero in place so the health section default applies.
func msOrZero(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
