package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Registry construction errors.
var (
	ErrEmptyName      = errors.New("registry: service name is required")
	ErrInvalidPrefix  = errors.New("registry: path prefix must start with /")
	ErrMissingBaseURL = errors.New("registry: base url is required")
	ErrDuplicateName  = errors.New("registry: duplicate service name")
	ErrUnknownService = errors.New("registry: unknown service")
)

// NoRouteError is returned when no registered prefix matches a path.
type NoRouteError struct {
	Path string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("registry: no route for path %q", e.Path)
}

// Registry resolves inbound paths to service descriptors.
type Registry struct {
	byName map[string]*ServiceDescriptor
	// ordered keeps registration order; byPrefix is sorted longest prefix first.
	ordered  []*ServiceDescriptor
	byPrefix []*ServiceDescriptor
}

// New builds a registry from descriptors in registration order.
func New(descriptors ...*ServiceDescriptor) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]*ServiceDescriptor, len(descriptors)),
		ordered: make([]*ServiceDescriptor, 0, len(descriptors)),
	}

	for _, d := range descriptors {
		if strings.TrimSpace(d.Name) == "" {
			return nil, ErrEmptyName
		}
		if !strings.HasPrefix(d.PathPrefix, "/") {
			return nil, fmt.Errorf("%w: service %s has %q", ErrInvalidPrefix, d.Name, d.PathPrefix)
		}
		if d.BaseURL == nil || d.BaseURL.Host == "" {
			return nil, fmt.Errorf("%w: service %s", ErrMissingBaseURL, d.Name)
		}
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, d.Name)
		}
		r.byName[d.Name] = d
		r.ordered = append(r.ordered, d)
	}

	r.byPrefix = make([]*ServiceDescriptor, len(r.ordered))
	copy(r.byPrefix, r.ordered)
	// Stable sort keeps registration order among equal-length prefixes.
	sort.SliceStable(r.byPrefix, func(i, j int) bool {
		return len(r.byPrefix[i].PathPrefix) > len(r.byPrefix[j].PathPrefix)
	})

	return r, nil
}

// Resolve returns the descriptor with the longest prefix matching path.
func (r *Registry) Resolve(path string) (*ServiceDescriptor, error) {
	if path == "" {
		path = "/"
	}
	for _, d := range r.byPrefix {
		if d.Matches(path) {
			return d, nil
		}
	}
	return nil, &NoRouteError{Path: path}
}

// List returns a snapshot of all descriptors in registration order.
func (r *Registry) List() []*ServiceDescriptor {
	out := make([]*ServiceDescriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (*ServiceDescriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return d, nil
}

// Names returns the service names in registration order.
func (r *Registry) Names() []string {
	return lo.Map(r.ordered, func(d *ServiceDescriptor, _ int) string {
		return d.Name
	})
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	return len(r.ordered)
}
