package guard

import (
	"context"
	"time"
)

// Clock returns the current time. Tests substitute a controllable clock.
type Clock func() time.Time

// Counter is a sliding-window event log keyed by client.
type Counter interface {
	// RecordAndCheck prunes events at or before now-window and, if fewer than max remain,
	// records now. It returns whether the event was admitted and the number of events in
	// the window afterwards. Prune, check and append are atomic per key.
	RecordAndCheck(ctx context.Context, key string, window time.Duration, max int) (bool, int, error)
	// Record appends an event unconditionally and returns the count in the window.
	Record(ctx context.Context, key string, window time.Duration) (int, error)
	// Count prunes and returns the number of events in the window without recording.
	Count(ctx context.Context, key string, window time.Duration) (int, error)
	// Oldest returns the earliest event still inside the window.
	Oldest(ctx context.Context, key string, window time.Duration) (time.Time, bool, error)
	// Reset forgets every event for key.
	Reset(ctx context.Context, key string) error
	// Sweep drops events that fell out of the longest window seen and reports how many keys
	// or rows were removed.
	Sweep(ctx context.Context) (int64, error)
}

// retryAfter is the time until the oldest event leaves the window, never less than a second.
func retryAfter(oldest time.Time, ok bool, window time.Duration, now time.Time) time.Duration {
	if !ok {
		return window
	}
	d := oldest.Add(window).Sub(now)
	if d < time.Second {
		return time.Second
	}
	return (d + time.Second - 1).Truncate(time.Second)
}
