package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/ytgate/internal/auth"
	"github.com/desertthunder/ytgate/internal/guard"
	"github.com/desertthunder/ytgate/internal/shared"
)

var (
	ErrMissingUserAgent = errors.New("User-Agent header is required")
	ErrRouteNotFound    = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// HTTPError carries a status and a client-safe detail message.
type HTTPError struct {
	Status int
	Detail string
	Err    error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Detail, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Detail)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Errorf returns an [*HTTPError] with a formatted detail.
func Errorf(status int, format string, args ...any) *HTTPError {
	return &HTTPError{Status: status, Detail: fmt.Sprintf(format, args...)}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Detail string `json:"detail"`
}

// StatusFor maps an error to its HTTP status and detail. Unknown errors become a 500
// with a generic detail; their message never reaches the client.
func StatusFor(err error) (int, string) {
	var (
		httpErr *HTTPError
		oauth   *auth.OAuthExchangeError
	)

	switch {
	case errors.As(err, &httpErr):
		return httpErr.Status, httpErr.Detail
	case errors.Is(err, ErrMissingUserAgent):
		return http.StatusBadRequest, "User-Agent header is required"
	case errors.Is(err, guard.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, guard.ErrTooManyAttempts):
		return http.StatusForbidden, "Too many failed attempts"
	case errors.Is(err, auth.ErrSessionExpired):
		return http.StatusUnauthorized, "Session expired"
	case errors.Is(err, auth.ErrSessionNotFound):
		return http.StatusUnauthorized, "Invalid session"
	case errors.Is(err, auth.ErrInvalidCredential):
		return http.StatusUnauthorized, "Invalid authentication credentials"
	case errors.Is(err, auth.ErrInsufficientScope):
		return http.StatusForbidden, "Insufficient scope"
	case errors.As(err, &oauth):
		return http.StatusUnauthorized, "OAuth exchange failed: " + oauth.Reason
	case errors.Is(err, auth.ErrNoRefreshToken):
		return http.StatusBadRequest, "No refresh token available"
	case errors.Is(err, auth.ErrMissingCode):
		return http.StatusBadRequest, "Missing authorization code"
	case errors.Is(err, auth.ErrStateMismatch):
		return http.StatusBadRequest, "Invalid state parameter"
	case errors.Is(err, ErrRouteNotFound), errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, "Method not allowed"
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, shared.ErrAPIRequest), errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusBadGateway, "Upstream service unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// WriteError writes err as a JSON error response with the headers its status calls for.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := StatusFor(err)

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	var (
		rle *guard.RateLimitExceeded
		tma *guard.TooManyAttempts
	)
	switch {
	case errors.As(err, &rle):
		setRetryAfter(w, rle.RetryAfter)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rle.Limit))
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", seconds(rle.RetryAfter))
	case errors.As(err, &tma):
		setRetryAfter(w, tma.RetryAfter)
	}

	WriteJSON(w, status, ErrorBody{Detail: detail})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	if d > 0 {
		w.Header().Set("Retry-After", seconds(d))
	}
}

func seconds(d time.Duration) string {
	return strconv.Itoa(int((d + time.Second - 1) / time.Second))
}
