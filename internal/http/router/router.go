package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mindgrove/tenant-auth-service/internal/http/handler"
	"github.com/mindgrove/tenant-auth-service/internal/http/middleware"
	"github.com/mindgrove/tenant-auth-service/internal/http/response"
	"github.com/mindgrove/tenant-auth-service/internal/security"
	"github.com/mindgrove/tenant-auth-service/internal/service"
)

type Dependencies struct {
	AuthHandler     *handler.AuthHandler
	JWTManager      *security.JWTManager
	SessionRegistry *service.SessionRegistry
	Logger          *slog.Logger

	// AuthRateLimiter guards the credential endpoints; nil falls back to a
	// per-process limiter.
	AuthRateLimiter  func(http.Handler) http.Handler
	AuthRateLimitRPM int
	EnableOTelHTTP   bool
}

func New(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	if dep.Logger != nil {
		r.Use(middleware.RequestLogger(dep.Logger))
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		rpm := dep.AuthRateLimitRPM
		if rpm <= 0 {
			rpm = 30
		}
		authLimiter = middleware.NewRateLimiter(
			middleware.NewLocalLimiter(), rpm, time.Minute, middleware.FailClosed,
		).Middleware()
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
		r.With(authLimiter).Post("/login/session", dep.AuthHandler.SessionLogin)
		r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
		r.With(middleware.Auth(dep.JWTManager)).Post("/logout", dep.AuthHandler.Logout)
		r.Post("/logout/session", dep.AuthHandler.LogoutSession)
		r.With(middleware.Session(dep.SessionRegistry)).Post("/session/extend", dep.AuthHandler.ExtendSession)
	})

	if dep.EnableOTelHTTP {
		return otelhttp.NewHandler(r, "http.server")
	}
	return r
}
