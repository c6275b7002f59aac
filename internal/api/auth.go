package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// adminOnly guards the operator control plane with a static bearer token.
// An empty configured token disables the operator surface entirely rather
// than leaving it open.
func adminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				respondError(w, http.StatusForbidden, "operator endpoints are disabled")
				return
			}

			header := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				respondError(w, http.StatusUnauthorized, "invalid or missing admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
