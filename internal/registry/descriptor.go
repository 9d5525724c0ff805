// Package registry maps inbound URL paths to the backend services behind the gateway.
//
// The registry is built once at startup from configuration and is read-only
// afterwards, so lookups need no locking.
package registry

import (
	"net/url"
	"strings"
	"time"
)

// Access classifies a route as requiring an authenticated user or not.
type Access string

// Route access classes.
const (
	AccessPublic    Access = "public"
	AccessProtected Access = "protected"
)

// Default descriptor values applied by the config layer.
const (
	DefaultHealthPath = "/health"
	DefaultTimeout    = 30 * time.Second
)

// ServiceDescriptor is the static description of one backend service.
// Descriptors are immutable after construction and shared read-only.
//
//nolint:govet // Field order follows the config file layout
type ServiceDescriptor struct {
	Name       string
	PathPrefix string
	BaseURL    *url.URL
	Timeout    time.Duration
	HealthPath string

	// Access is the default route class for every path under PathPrefix.
	Access Access
	// PublicPaths and ProtectedPaths are inbound path prefixes that override Access.
	PublicPaths    []string
	ProtectedPaths []string

	// StripPrefix removes PathPrefix from the outbound path.
	StripPrefix bool

	FailureThreshold int
	RecoveryTimeout  time.Duration
	HealthTTL        time.Duration
}

// Matches reports whether path falls under the descriptor's prefix.
func (d *ServiceDescriptor) Matches(path string) bool {
	return matchPrefix(d.PathPrefix, path)
}

// Classify returns the access class for an inbound path. The longest matching
// exception wins; on a tie between lists, protected wins.
func (d *ServiceDescriptor) Classify(path string) Access {
	public := longestMatch(d.PublicPaths, path)
	protected := longestMatch(d.ProtectedPaths, path)

	switch {
	case public < 0 && protected < 0:
		if d.Access == "" {
			return AccessProtected
		}
		return d.Access
	case public > protected:
		return AccessPublic
	default:
		return AccessProtected
	}
}

// UpstreamPath returns the path sent to the backend for an inbound path.
// The base URL path is joined by the reverse proxy, not here.
func (d *ServiceDescriptor) UpstreamPath(path string) string {
	if !d.StripPrefix || d.PathPrefix == "/" {
		return path
	}
	rest := strings.TrimPrefix(path, d.PathPrefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// HealthURL returns the absolute URL probed for this service.
func (d *ServiceDescriptor) HealthURL() string {
	healthPath := d.HealthPath
	if healthPath == "" {
		healthPath = DefaultHealthPath
	}
	return strings.TrimSuffix(d.BaseURL.String(), "/") + "/" + strings.TrimPrefix(healthPath, "/")
}

// matchPrefix reports whether path is prefix itself or lies below it on a
// segment boundary. "/auth" matches "/auth/login" but not "/authors".
func matchPrefix(prefix, path string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// longestMatch returns the length of the longest prefix in list matching path, or -1.
func longestMatch(list []string, path string) int {
	best := -1
	for _, p := range list {
		if matchPrefix(p, path) && len(p) > best {
			best = len(p)
		}
	}
	return best
}

// NormalizePrefix trims a trailing slash so "/users/" and "/users" are the same prefix.
func NormalizePrefix(prefix string) string {
	if len(prefix) <= 1 {
		return prefix
	}
	if trimmed := strings.TrimRight(prefix, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}
