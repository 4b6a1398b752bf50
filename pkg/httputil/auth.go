// Package httputil holds small HTTP helpers shared by the fake backend and
// relay used in tests.
package httputil

import (
	"net/http"
	"strings"
)

// ExtractBearerToken extracts a Bearer token from the Authorization header.
// Returns an empty string if no Bearer token is found.
func ExtractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	lower := strings.ToLower(auth)
	if strings.HasPrefix(lower, "bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}

	return ""
}

// ExtractRelayKey returns the api-key header used by threshold-network relays.
func ExtractRelayKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("api-key"))
}
