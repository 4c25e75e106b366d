package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytgate/internal/auth"
	"github.com/desertthunder/ytgate/internal/services"
)

// hopHeaders are response headers that describe the upstream connection, not the payload.
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Trailer":           true,
}

// ProxyHandler forwards /api/{path...} to the music proxy with the caller's access token.
type ProxyHandler struct {
	Upstream services.Upstream
	Logger   *log.Logger
}

func (p *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cred, ok := auth.CredentialFromContext(r.Context())
	if !ok {
		WriteError(w, r, auth.ErrInvalidCredential)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api")
	if path == "" || path == "/" {
		WriteError(w, r, ErrRouteNotFound)
		return
	}

	resp, err := p.Upstream.Do(r.Context(), services.APIRequest{
		Method:     r.Method,
		Path:       path,
		RawQuery:   r.URL.RawQuery,
		Header:     r.Header,
		Body:       r.Body,
		Credential: cred,
	})
	if err != nil {
		if p.Logger != nil {
			p.Logger.Error("upstream request failed", "path", path, "err", err)
		}
		WriteError(w, r, err)
		return
	}

	for k, vs := range resp.Headers {
		if hopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	// an upstream 401 is about the Google token, not the session; it must not count as a
	// failed login at the gate
	status := resp.StatusCode
	if status == http.StatusUnauthorized {
		status = http.StatusBadGateway
	}
	w.WriteHeader(status)
	w.Write(resp.Body)
}
