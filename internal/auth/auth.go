// Package auth provides optional bearer-token authentication for the API.
// Health probes, metrics, and the read-only tracking routes a public map
// client needs stay open even when auth is enabled.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// publicPaths are reachable without a token regardless of configuration.
var publicPaths = map[string]struct{}{
	"/healthz":             {},
	"/readyz":              {},
	"/metrics":             {},
	"/api/v1/tle/metadata": {},
}

// publicPrefixes cover the parameterized read-only tracking routes.
var publicPrefixes = []string{
	"/api/v1/subpoint/",
	"/api/v1/track/",
}

func isPublic(path string) bool {
	if _, ok := publicPaths[path]; ok {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// validToken compares the Authorization header against the configured token
// in constant time. A missing or non-Bearer header never matches.
func validToken(header, want string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}

// Middleware enforces bearer-token auth on non-public paths when enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if !validToken(r.Header.Get("Authorization"), cfg.Token) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
