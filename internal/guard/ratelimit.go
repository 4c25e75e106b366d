package guard

import (
	"context"
	"time"
)

const (
	DefaultRateLimit  = 50
	DefaultRateWindow = 60 * time.Second
)

// Decision describes the state of a client's window after an admitted request.
type Decision struct {
	Limit     int
	Remaining int
	Window    time.Duration
}

// RateLimiter admits at most Limit requests per Window for each client identity.
// Scope separates key spaces so two limiters can share one [Counter].
type RateLimiter struct {
	Counter Counter
	Scope   string
	Limit   int
	Window  time.Duration
	Now     Clock
}

// NewRateLimiter creates a limiter in the given key scope.
func NewRateLimiter(c Counter, scope string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{Counter: c, Scope: scope, Limit: limit, Window: window}
}

func (l *RateLimiter) key(identity string) string { return l.Scope + ":" + identity }

func (l *RateLimiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow records one request for identity. Over the limit it returns a [*RateLimitExceeded]
// and records nothing.
func (l *RateLimiter) Allow(ctx context.Context, identity, path string) (Decision, error) {
	d := Decision{Limit: l.Limit, Window: l.Window}

	allowed, n, err := l.Counter.RecordAndCheck(ctx, l.key(identity), l.Window, l.Limit)
	if err != nil {
		return d, err
	}
	if allowed {
		d.Remaining = max(l.Limit-n, 0)
		return d, nil
	}

	oldest, ok, err := l.Counter.Oldest(ctx, l.key(identity), l.Window)
	if err != nil {
		return d, err
	}
	return d, &RateLimitExceeded{
		Identity:   identity,
		Path:       path,
		Limit:      l.Limit,
		Window:     l.Window,
		RetryAfter: retryAfter(oldest, ok, l.Window, l.now()),
	}
}

// Check is [RateLimiter.Allow] without the decision.
func (l *RateLimiter) Check(ctx context.Context, identity, path string) error {
	_, err := l.Allow(ctx, identity, path)
	return err
}
