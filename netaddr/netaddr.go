// Package netaddr resolves the public network address behind an incoming
// request. Resolution is best effort: any failure yields Unknown, and the
// network-fingerprint guard treats Unknown as "skip the check" (fail open)
// rather than blocking legitimate respondents.
package netaddr

import (
	"net"
	"net/http"
	"strings"
)

// Unknown means the address could not be determined.
const Unknown = ""

type Resolver interface {
	Resolve(r *http.Request) string
}

// RequestResolver reads the client address from proxy headers, falling back
// to the connection's remote address.
type RequestResolver struct {
	// TrustForwarded enables X-Forwarded-For / X-Real-IP, for deployments
	// behind a reverse proxy.
	TrustForwarded bool
}

func (rr RequestResolver) Resolve(r *http.Request) string {
	if rr.TrustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			// first hop is the original client
			addr := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if ip := net.ParseIP(addr); ip != nil {
				return ip.String()
			}
		}
		if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
			if ip := net.ParseIP(real); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr may already be a bare host
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return Unknown
}
