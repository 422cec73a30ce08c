// Package httputil holds small HTTP helpers shared across handlers.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// proxyHeaders are consulted in order when proxy headers are trusted.
var proxyHeaders = [...]string{"X-Forwarded-For", "X-Real-IP"}

// ClientIP resolves the originating client address for a request. With
// trustProxy set, the leftmost parseable entry of the usual proxy headers
// wins; enable that only behind a reverse proxy that overwrites inbound
// copies of those headers. Otherwise the transport peer address is used.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, name := range proxyHeaders {
			if ip := leftmostAddr(r.Header.Get(name)); ip != "" {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// leftmostAddr extracts the first entry of a comma-separated header value,
// returning "" when the header is empty or the entry is not an IP address.
func leftmostAddr(value string) string {
	entry := value
	if i := strings.IndexByte(value, ','); i >= 0 {
		entry = value[:i]
	}
	entry = strings.TrimSpace(entry)
	if entry == "" || net.ParseIP(entry) == nil {
		return ""
	}
	return entry
}
