// Package ro holds the reactive stream helpers shopgate builds on samber/ro.
//
// IMPORTANT: samber/ro is pre-1.0. Keep usage to the small surface below.
//
// Streams are used where work is naturally a sequence of events: the
// background health sweep and OS shutdown signals. Request handling stays
// plain synchronous code.
package ro

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/ro"
)

// StreamFromSlice creates an Observable that emits items in order, then completes.
func StreamFromSlice[T any](items []T) ro.Observable[T] {
	return ro.FromSlice(items)
}

// FilterStream keeps the items for which predicate returns true.
func FilterStream[T any](source ro.Observable[T], predicate func(T) bool) ro.Observable[T] {
	return ro.Pipe1(source, ro.Filter(predicate))
}

// LogEach logs each item at Debug level without modifying the stream.
//
// Example:
//
//	stream := ro.Pipe1(
//	    services,
//	    LogEach[string](&logger, "health-refresh"),
//	)
func LogEach[T any](logger *zerolog.Logger, name string) func(ro.Observable[T]) ro.Observable[T] {
	return ro.DoOnNext[T](func(item T) {
		logger.Debug().
			Interface("item", item).
			Str("stream", name).
			Msg("stream event")
	})
}

// Collect blocks until source completes and returns every item.
func Collect[T any](source ro.Observable[T]) ([]T, error) {
	return ro.Collect(source)
}

// CollectWithContext is Collect bounded by ctx.
func CollectWithContext[T any](ctx context.Context, source ro.Observable[T]) ([]T, context.Context, error) {
	return ro.CollectWithContext(ctx, source)
}
