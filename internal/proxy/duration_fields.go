package proxy

import (
	"time"

	"github.com/rs/zerolog"
)

// addDurationFields logs an exact microsecond value plus a human-friendly duration.
func addDurationFields(event *zerolog.Event, name string, d time.Duration) *zerolog.Event {
	if d <= 0 {
		return event
	}
	return event.Int64(name+"_us", d.Microseconds()).Str(name, formatDuration(d))
}

// addDurationFieldsCtx is addDurationFields for a logger context.
func addDurationFieldsCtx(ctx *zerolog.Context, name string, d time.Duration) {
	if d <= 0 {
		return
	}
	*ctx = ctx.Int64(name+"_us", d.Microseconds()).Str(name, formatDuration(d))
}
