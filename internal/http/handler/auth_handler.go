package handler

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/mindgrove/tenant-auth-service/internal/http/middleware"
	"github.com/mindgrove/tenant-auth-service/internal/http/response"
	"github.com/mindgrove/tenant-auth-service/internal/observability"
	"github.com/mindgrove/tenant-auth-service/internal/service"
)

type AuthHandler struct {
	auth     *service.AuthOrchestrator
	sessions *service.SessionRegistry
}

func NewAuthHandler(auth *service.AuthOrchestrator, sessions *service.SessionRegistry) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"device_id,omitempty"`
}

type sessionLoginRequest struct {
	loginRequest
	SessionID string `json:"session_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	Token string `json:"token,omitempty"`
}

type extendSessionRequest struct {
	Minutes int `json:"minutes"`
}

// Login is the stateless flow: tokens only, no tracked session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and password are required", nil)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, clientContext(r, req.DeviceID))
	if err != nil {
		response.Failure(w, r, err)
		return
	}
	observability.Audit(r, "auth.login", "user_id", result.Identity.UserID)
	response.JSON(w, r, http.StatusOK, result)
}

// SessionLogin is the stateful flow with duplicate-login handling.
func (h *AuthHandler) SessionLogin(w http.ResponseWriter, r *http.Request) {
	var req sessionLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Email == "" || req.Password == "" || req.SessionID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email, password and session_id are required", nil)
		return
	}

	result, err := h.auth.LoginWithSession(r.Context(), req.Email, req.Password, req.SessionID, clientContext(r, req.DeviceID))
	if err != nil {
		response.Failure(w, r, err)
		return
	}
	if result.ConfirmationRequired {
		observability.Audit(r, "auth.login.confirmation_required", "user_id", result.Identity.UserID)
		// 409: an active session exists and policy demands explicit consent.
		response.JSON(w, r, http.StatusConflict, result)
		return
	}
	observability.Audit(r, "auth.login.session", "user_id", result.Identity.UserID, "session_id", result.SessionID)
	response.JSON(w, r, http.StatusOK, result)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "refresh_token is required", nil)
		return
	}

	result, err := h.auth.Refresh(r.Context(), req.RefreshToken, clientContext(r, ""))
	if err != nil {
		response.Failure(w, r, err)
		return
	}
	observability.Audit(r, "auth.refresh", "user_id", result.Identity.UserID)
	response.JSON(w, r, http.StatusOK, result)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.auth.Logout(r.Context(), req.Token); err != nil {
		response.Failure(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) LogoutSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(middleware.SessionHeader)
	if sessionID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "missing session id", nil)
		return
	}
	ended, err := h.auth.LogoutSession(r.Context(), sessionID)
	if err != nil {
		response.Failure(w, r, err)
		return
	}
	if !ended {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "no active session", nil)
		return
	}
	observability.Audit(r, "auth.logout.session", "session_id", sessionID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "session_ended"})
}

// ExtendSession pushes the current session's expiry forward. Runs behind the
// session middleware, so the session is known to be live.
func (h *AuthHandler) ExtendSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "SESSION_REQUIRED", "missing session", nil)
		return
	}
	var req extendSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Minutes <= 0 || req.Minutes > 240 {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "minutes must be between 1 and 240", nil)
		return
	}

	extended, err := h.sessions.Extend(r.Context(), sess.SessionID, req.Minutes)
	if err != nil {
		response.Failure(w, r, err)
		return
	}
	if !extended {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "no active session", nil)
		return
	}
	observability.Audit(r, "session.extend", "session_id", sess.SessionID, "minutes", req.Minutes)
	response.JSON(w, r, http.StatusOK, map[string]any{"status": "extended", "minutes": req.Minutes})
}

func clientContext(r *http.Request, deviceID string) service.ClientContext {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return service.ClientContext{
		DeviceID:  deviceID,
		IPAddress: host,
		UserAgent: r.UserAgent(),
	}
}
