// Package httpauth implements the single AUTH_TOKEN check shared by the hook
// endpoint and the WebSocket upgrade, per spec §6: a Bearer header or a
// ?token= query parameter, honored only when a token is configured.
package httpauth

import (
	"net/http"
	"strings"
)

// Authorized reports whether r carries a valid presentation of token. An
// empty token accepts every request (auth disabled).
func Authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	if r.URL.Query().Get("token") == token {
		return true
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == token
	}
	return false
}
