package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrSessionNotFound   = fmt.Errorf("%w: invalid session", ErrInvalidCredential)
	ErrSessionExpired    = fmt.Errorf("%w: session expired", ErrInvalidCredential)
	ErrInsufficientScope = errors.New("insufficient scope")

	ErrOAuthExchangeFailed = errors.New("oauth exchange failed")
	ErrMissingCode         = errors.New("authorization code is required")
	ErrStateMismatch       = errors.New("state parameter does not match")
	ErrNoRefreshToken      = errors.New("credential has no refresh token")
)

// OAuthExchangeError reports why Google refused a code exchange or refresh.
// Reason is safe to return to the client.
type OAuthExchangeError struct {
	Reason string
	Err    error
}

func (e *OAuthExchangeError) Error() string {
	return fmt.Sprintf("oauth exchange failed: %s", e.Reason)
}

func (e *OAuthExchangeError) Is(target error) bool { return target == ErrOAuthExchangeFailed }

func (e *OAuthExchangeError) Unwrap() error { return e.Err }
