package ratelimit_test

import (
	"testing"
	"time"

	"github.com/samber/ro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/shopgate/internal/ratelimit"
)

func TestLimitStreamCapsItems(t *testing.T) {
	t.Parallel()

	items, err := ro.Collect(ratelimit.LimitStream(ro.Just("a", "b", "c", "d"), 2, time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)
}

func TestStreamLimitOperatorPerKey(t *testing.T) {
	t.Parallel()

	op := ratelimit.NewStreamLimitOperator[string](1, 0, func(s string) string { return s[:1] })
	items, err := ro.Collect(ro.Pipe1(ro.Just("u1", "u2", "o1", "o2", "p1"), op))
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "o1", "p1"}, items)
}
