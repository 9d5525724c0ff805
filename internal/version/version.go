// Package version provides build information for shopgate.
package version

import "strings"

var (
	// Version is the git describe output (injected at build time via ldflags).
	Version = "dev"
	// Commit is the git commit hash (injected at build time via ldflags).
	Commit = "none"
	// BuildDate is the build timestamp (injected at build time via ldflags).
	BuildDate = "unknown"
)

// String returns formatted version information.
func String() string {
	return Short() + " (commit: " + Commit + ", built: " + BuildDate + ")"
}

// Short compacts a git describe version. A build past a tag such as
// "v0.3.1-20-ga961617-dirty" becomes "v0.3.1-a961617-20"; anything else is
// returned unchanged.
func Short() string {
	v := strings.TrimSuffix(Version, "-dirty")
	parts := strings.Split(v, "-")
	if len(parts) < 3 {
		return Version
	}

	hash := parts[len(parts)-1]
	distance := parts[len(parts)-2]
	if !strings.HasPrefix(hash, "g") || strings.Trim(distance, "0123456789") != "" {
		return Version
	}

	tag := strings.Join(parts[:len(parts)-2], "-")
	return tag + "-" + strings.TrimPrefix(hash, "g") + "-" + distance
}
