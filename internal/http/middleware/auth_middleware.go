package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mindgrove/tenant-auth-service/internal/http/response"
	"github.com/mindgrove/tenant-auth-service/internal/security"
)

type contextKey string

const claimsContextKey contextKey = "access_claims"

// Auth verifies the bearer access token and stashes its claims on the
// request context.
func Auth(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			claims, err := jwtMgr.ParseAccess(raw)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func ClaimsFromContext(ctx context.Context) (*security.AccessClaims, bool) {
	c, ok := ctx.Value(claimsContextKey).(*security.AccessClaims)
	return c, ok
}
