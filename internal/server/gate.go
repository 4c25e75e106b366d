package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytgate/internal/guard"
)

// Gate applies the User-Agent requirement, rate limits and brute-force lockout to every
// request before it reaches a handler.
//
// Order: User-Agent (400), rate limit (429), brute-force pre-check when an Authorization
// header is present (403), handler, and finally a recorded failure when that handler
// answered 401.
type Gate struct {
	Limiter     *guard.RateLimiter
	AuthLimiter *guard.RateLimiter
	BruteForce  *guard.BruteForceGuard
	TrustProxy  bool
	Exempt      map[string]bool
	Security    *SecurityLog
	Logger      *log.Logger
}

// DefaultExempt are the paths served without any gating.
var DefaultExempt = map[string]bool{"/health": true, "/metrics": true}

func (g *Gate) limiterFor(path string) *guard.RateLimiter {
	if g.AuthLimiter != nil && strings.HasPrefix(path, "/auth/") {
		return g.AuthLimiter
	}
	return g.Limiter
}

// Middleware returns the gate as a [Middleware].
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if g.Exempt[path] {
			next.ServeHTTP(w, r)
			return
		}

		client := ClientIdentity(r, g.TrustProxy)
		ctx := r.Context()

		if r.Header.Get("User-Agent") == "" {
			g.Security.Event(EventMissingUserAgent, client, path)
			WriteError(w, r, ErrMissingUserAgent)
			return
		}

		if l := g.limiterFor(path); l != nil {
			d, err := l.Allow(ctx, client, path)
			if err != nil {
				g.reject(w, r, err, client)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		}

		hasAuth := r.Header.Get("Authorization") != ""
		if hasAuth && g.BruteForce != nil {
			if err := g.BruteForce.Check(ctx, client); err != nil {
				g.reject(w, r, err, client)
				return
			}
		}

		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		if hasAuth && g.BruteForce != nil && rec.status == http.StatusUnauthorized {
			// the client may already be gone; the failure still counts
			n, err := g.BruteForce.RecordFailure(context.WithoutCancel(ctx), client)
			if err != nil {
				g.logger().Error("failed to record authentication failure", "client", client, "err", err)
				return
			}
			g.Security.Event(EventBruteForceFailure, client, path, "attempts", n)
		}
	})
}

// reject writes a gate decision. Counter failures are internal errors, not rejections.
func (g *Gate) reject(w http.ResponseWriter, r *http.Request, err error, client string) {
	switch {
	case errors.Is(err, guard.ErrRateLimited):
		g.Security.Event(EventRateLimited, client, r.URL.Path)
	case errors.Is(err, guard.ErrTooManyAttempts):
		g.Security.Event(EventBruteForceLockout, client, r.URL.Path)
	default:
		g.logger().Error("gate check failed", "client", client, "path", r.URL.Path, "err", err)
	}
	WriteError(w, r, err)
}

func (g *Gate) logger() *log.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return log.Default()
}
