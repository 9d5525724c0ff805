package health_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/omarluq/shopgate/internal/health"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		name   string
		want   health.Outcome
		status int
	}{
		{name: "ok", status: 200, want: health.OutcomeSuccess},
		{name: "redirect", status: 302, want: health.OutcomeSuccess},
		{name: "not found", status: 404, want: health.OutcomeClientError},
		{name: "unprocessable", status: 422, want: health.OutcomeClientError},
		{name: "internal", status: 500, want: health.OutcomeServerError},
		{name: "unavailable", status: 503, want: health.OutcomeServerError},
		{name: "deadline", err: context.DeadlineExceeded, want: health.OutcomeTimeout},
		{name: "wrapped deadline", err: fmt.Errorf("dial: %w", context.DeadlineExceeded), want: health.OutcomeTimeout},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, want: health.OutcomeTimeout},
		{name: "refused", err: errors.New("connection refused"), want: health.OutcomeNetworkError},
		{name: "error wins over status", err: errors.New("reset"), status: 200, want: health.OutcomeNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, health.Classify(tt.status, tt.err))
		})
	}
}

func TestOutcomePredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, health.OutcomeServerError.IsFailure())
	assert.True(t, health.OutcomeTimeout.IsFailure())
	assert.True(t, health.OutcomeNetworkError.IsFailure())
	assert.False(t, health.OutcomeClientError.IsFailure())
	assert.False(t, health.OutcomeSuccess.IsFailure())

	assert.True(t, health.OutcomeClientError.IsExcluded())
	assert.True(t, health.OutcomeRejected.IsExcluded())
	assert.False(t, health.OutcomeSuccess.IsExcluded())

	assert.Equal(t, "timeout", health.OutcomeTimeout.String())
	assert.Equal(t, "unknown", health.Outcome(99).String())
}

func TestClassify_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a status is a failure iff it is >= 500", prop.ForAll(
		func(status int) bool {
			return health.Classify(status, nil).IsFailure() == (status >= 500)
		},
		gen.IntRange(100, 599),
	))

	properties.Property("4xx is never a failure and always excluded", prop.ForAll(
		func(status int) bool {
			o := health.Classify(status, nil)
			return !o.IsFailure() && o.IsExcluded()
		},
		gen.IntRange(400, 499),
	))

	properties.Property("any transport error is a failure", prop.ForAll(
		func(status int, msg string) bool {
			return health.Classify(status, errors.New(msg)).IsFailure()
		},
		gen.IntRange(0, 599),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
