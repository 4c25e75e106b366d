// Package services implements the gateway's client for the ytmusicapi proxy.
//
// [APIService] forwards each gated /api call upstream. Only a small set of request headers
// travels with it; the caller's Google access token replaces whatever Authorization header
// the client sent, since the client authenticated to the gateway with a session token.
//
// Outbound traffic is throttled with a token bucket from golang.org/x/time/rate so a burst of
// admitted clients cannot flood the proxy. Responses are buffered up to [MaxResponseBytes] and
// decoded when they are JSON.
package services
