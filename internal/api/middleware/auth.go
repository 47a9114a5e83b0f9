// internal/api/middleware/auth.go
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/newthinker/quantguard/internal/api/response"
	"github.com/newthinker/quantguard/internal/core"
)

var (
	errMissingKey = &core.Error{Code: "UNAUTHORIZED", Message: "missing API key"}
	errInvalidKey = &core.Error{Code: "UNAUTHORIZED", Message: "invalid API key"}
)

// APIKeyAuth guards the admin routes. The key is read from X-API-Key or an
// "Authorization: Bearer" header. An empty apiKey disables the check.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := requestKey(r)
			if provided == "" {
				response.Error(w, http.StatusUnauthorized, errMissingKey)
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				response.Error(w, http.StatusUnauthorized, errInvalidKey)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
