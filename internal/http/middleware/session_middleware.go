package middleware

import (
	"context"
	"net/http"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/http/response"
	"github.com/mindgrove/tenant-auth-service/internal/service"
)

const SessionHeader = "X-Session-Id"

const sessionContextKey contextKey = "session"

// Session resolves the caller's tracked session from the X-Session-Id
// header and slides its activity window. Requests without a live session
// are rejected.
func Session(registry *service.SessionRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get(SessionHeader)
			if sessionID == "" {
				response.Error(w, r, http.StatusUnauthorized, "SESSION_REQUIRED", "missing session id", nil)
				return
			}
			sess, err := registry.GetActive(r.Context(), sessionID)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "no active session", nil)
				return
			}
			if err := registry.TouchSession(r.Context(), sess); err != nil {
				response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
				return
			}
			ctx := context.WithValue(r.Context(), sessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*domain.Session)
	return s, ok
}
