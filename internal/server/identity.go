package server

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentity returns the key the gate buckets a request under.
//
// With trustProxy the first X-Forwarded-For entry wins; otherwise the RemoteAddr host is used
// so a client cannot pick its own bucket.
func ClientIdentity(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
