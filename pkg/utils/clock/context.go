package clock

import (
	"context"
	"time"
)

type ctxClockKey struct{}

type Clock func() time.Time

// Fixed always returns t. Tests use it to pin timestamps of messages and
// run log lines.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

func With(ctx context.Context, clock Clock) context.Context {
	return context.WithValue(ctx, ctxClockKey{}, clock)
}

func Now(ctx context.Context) time.Time {
	if clock, ok := ctx.Value(ctxClockKey{}).(Clock); ok {
		return clock()
	}
	return time.Now()
}

// Stamp is Now in UTC truncated to milliseconds, the precision kept by
// serialized sessions.
func Stamp(ctx context.Context) time.Time {
	return Now(ctx).UTC().Truncate(time.Millisecond)
}
