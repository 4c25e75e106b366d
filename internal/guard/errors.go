package guard

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimited     = errors.New("too many requests")
	ErrTooManyAttempts = errors.New("too many failed attempts")
	ErrInvalidLimit    = errors.New("limit and window must be positive")
)

// RateLimitExceeded is returned by [RateLimiter.Check] when a client is over its limit.
type RateLimitExceeded struct {
	Identity   string
	Path       string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s on %s: %d requests per %s", e.Identity, e.Path, e.Limit, e.Window)
}

func (e *RateLimitExceeded) Is(target error) bool { return target == ErrRateLimited }

// TooManyAttempts is returned by [BruteForceGuard.Check] while a client is locked out.
type TooManyAttempts struct {
	Identity   string
	Attempts   int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *TooManyAttempts) Error() string {
	return fmt.Sprintf("%s has %d failed attempts within %s", e.Identity, e.Attempts, e.Window)
}

func (e *TooManyAttempts) Is(target error) bool { return target == ErrTooManyAttempts }
