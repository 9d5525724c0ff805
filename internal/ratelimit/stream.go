package ratelimit

import (
	"time"

	"github.com/samber/ro"
	roratelimit "github.com/samber/ro/plugins/ratelimit/native"
)

// DefaultStreamInterval is the window used when a stream limit has none.
const DefaultStreamInterval = time.Minute

// NewStreamLimitOperator caps a stream at count items per interval and key.
// Items over the cap are not emitted. Background work (health probes) uses it;
// inbound requests go through ClientLimiter instead.
func NewStreamLimitOperator[T any](
	count int64,
	interval time.Duration,
	keyGetter func(T) string,
) func(ro.Observable[T]) ro.Observable[T] {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return roratelimit.NewRateLimiter[T](count, interval, keyGetter)
}

// LimitStream applies one shared cap to every item of source.
func LimitStream[T any](source ro.Observable[T], count int64, interval time.Duration) ro.Observable[T] {
	return ro.Pipe1(source, NewStreamLimitOperator[T](count, interval, func(T) string { return "" }))
}
