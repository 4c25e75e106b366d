package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/desertthunder/ytgate/internal/auth"
	"github.com/desertthunder/ytgate/internal/models"
	"github.com/desertthunder/ytgate/internal/shared"
)

const (
	stateCookie   = "ytgate_oauth_state"
	stateLifetime = 10 * time.Minute
)

// authRoutes are the fixed paths served by [AuthHandlers].
var authRoutes = map[string]bool{
	"/auth/login":     true,
	"/auth/oauth-url": true,
	"/auth/callback":  true,
	"/auth/me":        true,
	"/auth/user":      true,
	"/auth/logout":    true,
	"/auth/refresh":   true,
}

// OAuthFlow is the part of [auth.OAuthClient] the HTTP handlers use.
type OAuthFlow interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (models.Credential, error)
	auth.Refresher
}

// AuthHandlers serves the login flow and the session endpoints under /auth.
type AuthHandlers struct {
	OAuth        OAuthFlow
	Sessions     *auth.SessionStore
	Verifier     auth.Verifier
	Security     *SecurityLog
	TrustProxy   bool
	SecureCookie bool
}

// Register adds the /auth routes to r.
func (h *AuthHandlers) Register(r *BasicRouter) {
	protect := RequireAuth(h.Verifier, h.Security, h.TrustProxy)

	r.HandleFunc(http.MethodGet, "/auth/login", h.login)
	r.HandleFunc(http.MethodGet, "/auth/oauth-url", h.oauthURL)
	r.HandleFunc(http.MethodGet, "/auth/callback", h.callback)
	r.Handle(http.MethodGet, "/auth/me", protect(http.HandlerFunc(h.me)))
	r.Handle(http.MethodGet, "/auth/user", protect(http.HandlerFunc(h.user)))
	r.Handle(http.MethodPost, "/auth/logout", protect(http.HandlerFunc(h.logout)))
	r.Handle(http.MethodPost, "/auth/refresh", protect(http.HandlerFunc(h.refresh)))
}

// startFlow issues a state value and binds it to the browser with a short-lived cookie.
func (h *AuthHandlers) startFlow(w http.ResponseWriter) (string, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateLifetime / time.Second),
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return h.OAuth.AuthCodeURL(state), nil
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	url, err := h.startFlow(w)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (h *AuthHandlers) oauthURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.startFlow(w)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

// CallbackResponse is returned once a login completes. SessionToken is shown only here.
type CallbackResponse struct {
	Message      string    `json:"message"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (h *AuthHandlers) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		WriteError(w, r, &auth.OAuthExchangeError{Reason: e})
		return
	}

	code := q.Get("code")
	if code == "" {
		WriteError(w, r, auth.ErrMissingCode)
		return
	}

	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(q.Get("state"))) != 1 {
		WriteError(w, r, auth.ErrStateMismatch)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth", MaxAge: -1})

	cred, err := h.OAuth.Exchange(r.Context(), code)
	if err != nil {
		h.Security.Event(EventAuthFailure, ClientIdentity(r, h.TrustProxy), r.URL.Path, "reason", err)
		WriteError(w, r, err)
		return
	}

	client := ClientIdentity(r, h.TrustProxy)
	meta := models.SessionMeta{UserAgent: r.UserAgent(), ClientIP: client}
	token, session, err := h.Sessions.Create(r.Context(), cred, meta)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.Security.Event(EventSessionCreated, client, r.URL.Path, "session", session.ID(), "credential", session.CredentialID)

	WriteJSON(w, http.StatusOK, CallbackResponse{
		Message:      "Authentication successful",
		SessionToken: token,
		ExpiresAt:    session.ExpiresAt,
	})
}

// MeResponse describes the caller's credential. Secrets and tokens are never included.
type MeResponse struct {
	ClientID string    `json:"client_id"`
	Subject  string    `json:"subject,omitempty"`
	Email    string    `json:"email,omitempty"`
	Scopes   []string  `json:"scopes"`
	Expiry   time.Time `json:"expiry,omitzero"`
}

func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFromContext(r.Context())
	WriteJSON(w, http.StatusOK, MeResponse{
		ClientID: cred.ClientID,
		Subject:  cred.Subject,
		Email:    cred.Email,
		Scopes:   cred.GrantedScopes(),
		Expiry:   cred.Expiry,
	})
}

func (h *AuthHandlers) user(w http.ResponseWriter, r *http.Request) {
	cred, _ := auth.CredentialFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]string{"username": cred.ClientID})
}

func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.SessionTokenFromContext(r.Context())
	if err := h.Sessions.Invalidate(r.Context(), token); err != nil {
		WriteError(w, r, err)
		return
	}
	h.Security.Event(EventSessionRevoked, ClientIdentity(r, h.TrustProxy), r.URL.Path)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.SessionTokenFromContext(r.Context())
	stored, err := h.Sessions.Refresh(r.Context(), token, h.OAuth)
	if err != nil {
		// The caller's session is valid; a refusal from Google must not read as a 401.
		var oauth *auth.OAuthExchangeError
		if errors.As(err, &oauth) {
			err = &HTTPError{Status: http.StatusBadGateway, Detail: "OAuth refresh failed: " + oauth.Reason, Err: err}
		}
		WriteError(w, r, err)
		return
	}
	h.Security.Event(EventSessionRefreshed, ClientIdentity(r, h.TrustProxy), r.URL.Path, "credential", stored.ID())
	WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Token refreshed",
		"expiry":  stored.Expiry,
	})
}
