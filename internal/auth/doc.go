// Package auth owns the gateway's notion of identity.
//
// # OAuth
//
// [OAuthClient] drives Google's authorization code flow with golang.org/x/oauth2. Consent URLs
// request offline access so a refresh token comes back; when ID token verification is
// enabled, go-oidc checks the id_token and its subject and email are kept on the credential.
// Exchange and refresh failures surface as [*OAuthExchangeError] and are never retried.
//
// # Sessions
//
// [SessionStore] issues opaque 256-bit bearer tokens bound to a stored credential. Sessions
// last one hour by default, are revoked in place on logout, and are deleted by
// [SessionStore.PurgeExpired]. Deleting a credential removes its sessions.
//
// # Verification
//
// [SessionVerifier] parses "Bearer <token>", resolves the session and then requires a granted
// scope under https://www.googleapis.com/auth/youtube. Malformed or unknown tokens map to
// 401, a valid identity lacking the scope to 403.
package auth
