package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omarluq/shopgate/internal/version"
)

func TestDefaultsAreSet(t *testing.T) {
	t.Parallel()

	assert.NotEmpty(t, version.Version)
	assert.NotEmpty(t, version.Commit)
	assert.NotEmpty(t, version.BuildDate)
}

//nolint:paralleltest // mutates package variables
func TestShort(t *testing.T) {
	orig := version.Version
	t.Cleanup(func() { version.Version = orig })

	tests := []struct {
		in   string
		want string
	}{
		{in: "v0.0.11-20-ga961617-dirty", want: "v0.0.11-a961617-20"},
		{in: "v1.2.0-rc.1-3-gdeadbee", want: "v1.2.0-rc.1-deadbee-3"},
		{in: "v1.2.0", want: "v1.2.0"},
		{in: "dev", want: "dev"},
		{in: "v1.2.0-beta-x", want: "v1.2.0-beta-x"},
	}

	for _, tt := range tests {
		version.Version = tt.in
		assert.Equal(t, tt.want, version.Short(), tt.in)
	}
}

//nolint:paralleltest // mutates package variables
func TestString(t *testing.T) {
	origVersion, origCommit, origDate := version.Version, version.Commit, version.BuildDate
	t.Cleanup(func() {
		version.Version, version.Commit, version.BuildDate = origVersion, origCommit, origDate
	})

	version.Version = "v0.1.0"
	version.Commit = "a961617"
	version.BuildDate = "2026-01-02"

	assert.Equal(t, "v0.1.0 (commit: a961617, built: 2026-01-02)", version.String())
}
