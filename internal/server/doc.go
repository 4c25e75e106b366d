// Package server is the gateway's HTTP layer.
//
// # Routing
//
// [BasicRouter] wraps [http.ServeMux] with per-path method dispatch. [Middleware] registered
// with Use wraps the whole mux, so unknown paths and wrong methods are gated and logged like
// any other request. Errors are written by [WriteError] as {"detail": "..."}.
//
// # Gate
//
// [Gate] runs before every handler except /health and /metrics:
//
//   - a request without User-Agent is rejected with 400
//   - the client identity is rate limited (429); /auth paths use their own limiter
//   - a request with an Authorization header is checked for brute-force lockout (403)
//   - after the handler, a 401 on such a request is recorded as a failed attempt
//
// [RequireAuth] then verifies the bearer session token and puts the credential on the
// request context for the /auth and /api handlers.
//
// # Routes
//
//	GET  /health          database and upstream status
//	GET  /metrics         Prometheus exposition
//	GET  /auth/login      redirect to Google consent
//	GET  /auth/oauth-url  consent URL as JSON
//	GET  /auth/callback   exchange code, create session
//	GET  /auth/me         caller's credential summary
//	POST /auth/logout     revoke the session
//	POST /auth/refresh    refresh the Google access token
//	*    /api/{path...}   forwarded to the music proxy
//
// [CallbackHandler] serves the loopback redirect used by `ytgate auth login`.
package server
