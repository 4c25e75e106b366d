package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"

	"github.com/desertthunder/ytgate/internal/auth"
	"github.com/desertthunder/ytgate/internal/shared"
)

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by [RequestID].
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// RequestID propagates X-Request-ID, generating one when the client sent none.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = shared.GenerateID()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// Logging logs one line per request.
func Logging(l *log.Logger, trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			l.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
				"client", ClientIdentity(r, trustProxy),
				"request_id", RequestIDFromContext(r.Context()),
			)
		})
	}
}

// Recover turns a panic into a 500 and reports it to Sentry. Sentry calls are no-ops until
// sentry.Init has run.
func Recover(l *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetRequest(r)
					scope.SetTag("request_id", RequestIDFromContext(r.Context()))
					scope.SetExtra("stack", string(debug.Stack()))
					sentry.CaptureException(fmt.Errorf("panic: %v", rec))
				})
				l.Error("panic recovered", "method", r.Method, "path", r.URL.Path, "panic", rec)

				WriteError(w, r, fmt.Errorf("panic: %v", rec))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows the configured origins to call the gateway with credentials.
func CORS(origins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (slices.Contains(origins, origin) || slices.Contains(origins, "*")) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
				h.Add("Vary", "Origin")

				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth verifies the Authorization header and stores the credential and session
// token on the request context. Failures are written with [WriteError].
func RequireAuth(v auth.Verifier, sec *SecurityLog, trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			cred, err := v.Verify(r.Context(), header)
			if err != nil {
				client := ClientIdentity(r, trustProxy)
				if errors.Is(err, auth.ErrInsufficientScope) {
					sec.Event(EventInsufficientScope, client, r.URL.Path)
				} else {
					sec.Event(EventAuthFailure, client, r.URL.Path, "reason", err)
				}
				WriteError(w, r, err)
				return
			}

			ctx := auth.WithCredential(r.Context(), cred)
			if token, err := auth.BearerToken(header); err == nil {
				ctx = auth.WithSessionToken(ctx, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
