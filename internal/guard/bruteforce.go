package guard

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts      = 5
	DefaultBruteForceWindow = 300 * time.Second
)

// BruteForceGuard locks out a client after MaxAttempts failed authentications within Window.
//
// Checking and recording are separate: the gate checks before the handler runs and records
// only once the handler has answered 401.
type BruteForceGuard struct {
	Counter     Counter
	MaxAttempts int
	Window      time.Duration
	Now         Clock
}

// NewBruteForceGuard creates a guard over c.
func NewBruteForceGuard(c Counter, maxAttempts int, window time.Duration) *BruteForceGuard {
	return &BruteForceGuard{Counter: c, MaxAttempts: maxAttempts, Window: window}
}

func bruteForceKey(identity string) string { return "bf:" + identity }

func (g *BruteForceGuard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Check returns a [*TooManyAttempts] when identity already has MaxAttempts failures in the
// window. It records nothing.
func (g *BruteForceGuard) Check(ctx context.Context, identity string) error {
	if g.MaxAttempts <= 0 || g.Window <= 0 {
		return ErrInvalidLimit
	}

	n, err := g.Counter.Count(ctx, bruteForceKey(identity), g.Window)
	if err != nil {
		return err
	}
	if n < g.MaxAttempts {
		return nil
	}

	oldest, ok, err := g.Counter.Oldest(ctx, bruteForceKey(identity), g.Window)
	if err != nil {
		return err
	}
	return &TooManyAttempts{
		Identity:   identity,
		Attempts:   n,
		Window:     g.Window,
		RetryAfter: retryAfter(oldest, ok, g.Window, g.now()),
	}
}

// RecordFailure appends one failed attempt and returns the failures now in the window.
func (g *BruteForceGuard) RecordFailure(ctx context.Context, identity string) (int, error) {
	return g.Counter.Record(ctx, bruteForceKey(identity), g.Window)
}

// Clear forgets the failures for identity.
func (g *BruteForceGuard) Clear(ctx context.Context, identity string) error {
	return g.Counter.Reset(ctx, bruteForceKey(identity))
}
