package integration

import (
	"net/http"
	"testing"

	"github.com/mindgrove/tenant-auth-service/internal/http/middleware"
)

func sessionLogin(t *testing.T, client *http.Client, baseURL, sessionID string) (*http.Response, envelope) {
	t.Helper()
	return doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login/session",
		map[string]string{"email": "solo@x.com", "password": "pw", "session_id": sessionID}, nil)
}

func TestSessionLoginTerminatesThePreviousSession(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()

	resp, env := sessionLogin(t, client, baseURL, "dev-a")
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("first session login: status=%d success=%v", resp.StatusCode, env.Success)
	}

	resp, env = sessionLogin(t, client, baseURL, "dev-b")
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("second session login: status=%d success=%v", resp.StatusCode, env.Success)
	}

	// dev-a was ended by the duplicate-login policy.
	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/session/extend",
		map[string]int{"minutes": 10}, map[string]string{middleware.SessionHeader: "dev-a"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("extend on terminated session: status=%d, want 401", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "SESSION_EXPIRED" {
		t.Fatalf("expected SESSION_EXPIRED, got %+v", env.Error)
	}
}

func TestSessionExtendAndLogout(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()

	resp, env := sessionLogin(t, client, baseURL, "dev-1")
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("session login: status=%d success=%v", resp.StatusCode, env.Success)
	}
	pair := decodeData[tokenPair](t, env)
	if pair.SessionID != "dev-1" {
		t.Fatalf("session id = %q, want dev-1", pair.SessionID)
	}

	headers := map[string]string{middleware.SessionHeader: "dev-1"}
	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/session/extend",
		map[string]int{"minutes": 60}, headers)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("extend: status=%d success=%v", resp.StatusCode, env.Success)
	}

	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/session/extend",
		map[string]int{"minutes": 9999}, headers)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range extend: status=%d, want 400", resp.StatusCode)
	}

	resp, env = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/logout/session", nil, headers)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("session logout: status=%d success=%v", resp.StatusCode, env.Success)
	}

	resp, _ = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/session/extend",
		map[string]int{"minutes": 10}, headers)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("extend after logout: status=%d, want 401", resp.StatusCode)
	}
}
