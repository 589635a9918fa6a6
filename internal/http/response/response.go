package response

import (
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mindgrove/tenant-auth-service/internal/service"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}, Meta: buildMeta(r)})
}

// Failure renders a service error. Typed failures map to stable codes and
// statuses; anything untyped is a plain 500 with no detail leaked.
func Failure(w http.ResponseWriter, r *http.Request, err error) {
	if kind, ok := service.KindOf(err); ok {
		Error(w, r, statusFor(kind), string(kind), err.Error(), nil)
		return
	}
	Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}

func statusFor(kind service.FailureKind) int {
	switch kind {
	case service.FailureInvalidCredentials, service.FailureInvalidToken:
		return http.StatusUnauthorized
	case service.FailureTenantAccessDenied:
		return http.StatusForbidden
	case service.FailureNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
