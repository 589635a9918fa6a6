package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/http/handler"
	"github.com/mindgrove/tenant-auth-service/internal/http/router"
	"github.com/mindgrove/tenant-auth-service/internal/repository"
	"github.com/mindgrove/tenant-auth-service/internal/security"
	"github.com/mindgrove/tenant-auth-service/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type tokenPair struct {
	AccessToken             string `json:"access_token"`
	RefreshToken            string `json:"refresh_token"`
	SessionID               string `json:"session_id"`
	RequiresTenantSelection bool   `json:"requires_tenant_selection"`
	ConfirmationRequired    bool   `json:"confirmation_required"`
	Tenants                 []struct {
		TenantID string `json:"tenant_id"`
		Name     string `json:"name"`
	} `json:"tenants"`
	Identity struct {
		UserID   uint   `json:"user_id"`
		Email    string `json:"email"`
		TenantID string `json:"tenant_id"`
	} `json:"identity"`
}

// newAuthTestServer stands up the whole stack on sqlite: two tenants, one
// single-tenant user and one email owning identity rows in both tenants.
func newAuthTestServer(t *testing.T, opts ...func(*router.Dependencies)) (string, *http.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Branch{}, &domain.User{}, &domain.Tenant{},
		&domain.RefreshToken{}, &domain.Session{},
		&domain.TenantRole{}, &domain.UserRoleAssignment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := repository.NewUserRepository(db)
	tenants := repository.NewTenantRepository(db)
	roles := repository.NewRoleAssignmentRepository(db)
	tokens := repository.NewRefreshTokenRepository(db)
	sessions := repository.NewSessionRepository(db)

	ctx := t.Context()
	for _, tenant := range []*domain.Tenant{
		{TenantID: "T1", Name: "Hanbit Center", Status: domain.TenantStatusActive},
		{TenantID: "T2", Name: "Maum Clinic", Status: domain.TenantStatusActive},
	} {
		if err := tenants.Create(ctx, tenant); err != nil {
			t.Fatalf("seed tenant %s: %v", tenant.TenantID, err)
		}
	}
	hash, err := security.HashPassword("pw", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	seedUsers := []*domain.User{
		{Email: "solo@x.com", Name: "Solo", PasswordHash: hash, Role: "ROLE_COUNSELOR", TenantID: "T1", IsActive: true},
		{Email: "multi@x.com", Name: "Multi One", PasswordHash: hash, Role: "ROLE_COUNSELOR", TenantID: "T1", IsActive: true},
		{Email: "multi@x.com", Name: "Multi Two", PasswordHash: hash, Role: "ROLE_MANAGER", TenantID: "T2", IsActive: true},
	}
	for _, u := range seedUsers {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("seed user %s/%s: %v", u.Email, u.TenantID, err)
		}
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwtMgr := security.NewJWTManager("auth-integration",
		"access-secret-access-secret-access-secret",
		"refresh-secret-refresh-secret-refresh-sec",
		30*time.Minute, 7*24*time.Hour)
	store := service.NewRefreshTokenStore(tokens, 7*24*time.Hour, bcrypt.MinCost, log)
	registry := service.NewSessionRegistry(sessions, service.SessionPolicy{
		IdleTimeout:           30 * time.Minute,
		DuplicateCheckEnabled: true,
		TerminateExisting:     true,
		SuspiciousIPThreshold: 5,
	}, log)
	resolver := service.NewTenantResolver(users, tenants, roles, store, log)
	orch := service.NewAuthOrchestrator(
		security.NewBcryptVerifier(users),
		users,
		service.NewMatrixPermissionResolver(),
		jwtMgr,
		store,
		registry,
		resolver,
		[]string{"ROLE_ADMIN", "ROLE_OPS"},
		log,
	)

	dep := router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(orch, registry),
		JWTManager:       jwtMgr,
		SessionRegistry:  registry,
		Logger:           log,
		AuthRateLimitRPM: 1000,
	}
	for _, opt := range opts {
		opt(&dep)
	}

	srv := httptest.NewServer(router.New(dep))
	return srv.URL, srv.Client(), srv.Close
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope from %s: %v", url, err)
	}
	return resp, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return out
}
