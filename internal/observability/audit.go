package observability

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Audit emits a structured audit log line for a security-relevant event.
func Audit(r *http.Request, event string, attrs ...any) {
	// The id chi minted for this request, not whatever the client sent.
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_ip", r.RemoteAddr,
		"request_id", id,
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}
