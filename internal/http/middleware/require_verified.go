package middleware

import (
	"net/http"

	"github.com/tendant/teamspace/internal/httputil"
)

// RequireConfirmedEmail rejects tokens of accounts whose email is not
// confirmed. Must be used after Auth.
func RequireConfirmedEmail() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !claims.EmailConfirmed {
				httputil.Error(w, http.StatusForbidden, "email confirmation required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
