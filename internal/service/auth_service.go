package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/observability"
	"github.com/mindgrove/tenant-auth-service/internal/repository"
	"github.com/mindgrove/tenant-auth-service/internal/security"
)

// IdentitySummary is the caller-facing slice of the authenticated identity.
type IdentitySummary struct {
	UserID   uint   `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	BranchID *uint  `json:"branch_id,omitempty"`
}

// LoginResult composes tokens, identity, multi-tenant info and the
// persistence outcome of the refresh-token record.
type LoginResult struct {
	AccessToken             string          `json:"access_token,omitempty"`
	RefreshToken            string          `json:"refresh_token,omitempty"`
	Identity                IdentitySummary `json:"identity"`
	SessionID               string          `json:"session_id,omitempty"`
	RequiresTenantSelection bool            `json:"requires_tenant_selection"`
	Tenants                 []TenantInfo    `json:"tenants,omitempty"`
	ConfirmationRequired    bool            `json:"confirmation_required,omitempty"`
	RefreshPersistence      Outcome         `json:"refresh_persistence"`
}

// RefreshResult is the payload of a successful token refresh.
type RefreshResult struct {
	AccessToken        string          `json:"access_token"`
	RefreshToken       string          `json:"refresh_token"`
	Identity           IdentitySummary `json:"identity"`
	RefreshPersistence Outcome         `json:"refresh_persistence"`
}

// AuthOrchestrator drives the login, refresh and logout flows across the
// credential verifier, token issuer, refresh-token store, session registry
// and tenant resolver.
type AuthOrchestrator struct {
	creds       CredentialVerifier
	users       IdentityDirectory
	permissions PermissionResolver
	issuer      *security.JWTManager
	store       *RefreshTokenStore
	sessions    *SessionRegistry
	tenants     *TenantResolver
	// operatorRoles are reserved roles barred from the tenant portal.
	operatorRoles map[string]bool
	logger        *slog.Logger
}

func NewAuthOrchestrator(
	creds CredentialVerifier,
	users IdentityDirectory,
	permissions PermissionResolver,
	issuer *security.JWTManager,
	store *RefreshTokenStore,
	sessions *SessionRegistry,
	tenants *TenantResolver,
	operatorRoles []string,
	logger *slog.Logger,
) *AuthOrchestrator {
	reserved := make(map[string]bool, len(operatorRoles))
	for _, r := range operatorRoles {
		if r != "" {
			reserved[r] = true
		}
	}
	return &AuthOrchestrator{
		creds:         creds,
		users:         users,
		permissions:   permissions,
		issuer:        issuer,
		store:         store,
		sessions:      sessions,
		tenants:       tenants,
		operatorRoles: reserved,
		logger:        logger,
	}
}

// Login is the stateless flow: verify credentials, resolve permissions,
// mint the token pair, persist the refresh record best-effort, then resolve
// multi-tenant reach.
func (a *AuthOrchestrator) Login(ctx context.Context, email, password string, client ClientContext) (*LoginResult, error) {
	user, err := a.authenticate(ctx, email, password)
	if err != nil {
		observability.RecordAuthLogin("stateless", "failure")
		return nil, err
	}

	result, err := a.issueTokens(ctx, user, client)
	if err != nil {
		observability.RecordAuthLogin("stateless", "failure")
		return nil, err
	}
	if err := a.attachTenants(ctx, user, result); err != nil {
		observability.RecordAuthLogin("stateless", "failure")
		return nil, err
	}
	observability.RecordAuthLogin("stateless", "success")
	return result, nil
}

// LoginWithSession is the stateful flow: the tenant-portal gate first, then
// the duplicate-login machine around session creation, then the same token
// issuance as the stateless flow.
func (a *AuthOrchestrator) LoginWithSession(ctx context.Context, email, password, sessionID string, client ClientContext) (*LoginResult, error) {
	user, err := a.authenticate(ctx, email, password)
	if err != nil {
		observability.RecordAuthLogin("session", "failure")
		return nil, err
	}

	if a.operatorRoles[user.Role] {
		a.logger.WarnContext(ctx, "operator identity rejected at tenant portal",
			"user_id", user.ID, "role", user.Role)
		observability.RecordAuthLogin("session", "denied")
		return nil, errOperatorDenied
	}

	// Rows left behind under this session id (a crashed client logging back
	// in with the same id) go first, before any duplicate accounting.
	a.sessions.CleanupStale(ctx, sessionID)

	policy := a.sessions.Policy()
	if policy.DuplicateCheckEnabled {
		active, err := a.sessions.CountOthersExcluding(ctx, user.ID, sessionID)
		if err != nil {
			return nil, err
		}
		if active > 0 {
			switch {
			case policy.AskUserConfirmation:
				observability.RecordDuplicateLogin("confirmation_required")
				return &LoginResult{
					Identity:             summarize(user),
					ConfirmationRequired: true,
				}, nil
			case policy.TerminateExisting:
				n, err := a.sessions.DeactivateAll(ctx, user.ID, domain.EndReasonDuplicateLogin)
				if err != nil {
					return nil, err
				}
				observability.RecordDuplicateLogin("terminated_existing")
				a.logger.InfoContext(ctx, "terminated prior sessions on duplicate login",
					"user_id", user.ID, "count", n)
			default:
				observability.RecordDuplicateLogin("coexist")
			}
		}
	}

	sess, err := a.sessions.CreateSession(ctx, user, sessionID, client.IPAddress, client.UserAgent, domain.LoginTypeNormal, nil)
	if err != nil {
		observability.RecordAuthLogin("session", "failure")
		return nil, err
	}
	if _, err := a.sessions.SuspiciousByIP(ctx, client.IPAddress); err != nil {
		a.logger.WarnContext(ctx, "suspicious-ip check failed, continuing", "error", err)
	}
	if err := a.users.UpdateLastLoginTime(ctx, user.ID, time.Now()); err != nil {
		a.logger.WarnContext(ctx, "last-login stamp failed, continuing",
			"user_id", user.ID, "error", err)
	}

	result, err := a.issueTokens(ctx, user, client)
	if err != nil {
		observability.RecordAuthLogin("session", "failure")
		return nil, err
	}
	result.SessionID = sess.SessionID
	if err := a.attachTenants(ctx, user, result); err != nil {
		observability.RecordAuthLogin("session", "failure")
		return nil, err
	}
	observability.RecordAuthLogin("session", "success")
	return result, nil
}

// Refresh exchanges a live refresh token for a new pair. The consumed record
// is revoked best-effort; the replacement is persisted best-effort, and a
// failed persistence downgrades revocability rather than the request.
func (a *AuthOrchestrator) Refresh(ctx context.Context, rawRefresh string, client ClientContext) (*RefreshResult, error) {
	subject, err := a.issuer.ParseSubject(rawRefresh)
	if err != nil {
		observability.RecordAuthRefresh("failure")
		return nil, errBadToken
	}
	user, err := a.users.FindByEmail(ctx, subject)
	if err != nil {
		observability.RecordAuthRefresh("failure")
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, errBadToken
		}
		return nil, err
	}
	if err := a.issuer.VerifyRefresh(rawRefresh, user.Email); err != nil {
		observability.RecordAuthRefresh("failure")
		return nil, errBadToken
	}

	perms, err := a.permissions.PermissionsFor(ctx, user)
	if err != nil {
		observability.RecordAuthRefresh("failure")
		return nil, err
	}
	access, err := a.issuer.MintAccessToken(user, perms)
	if err != nil {
		observability.RecordAuthRefresh("failure")
		return nil, err
	}

	if oldID, err := a.issuer.ParseTokenID(rawRefresh); err == nil && oldID != "" {
		if err := a.store.Revoke(ctx, oldID); err != nil {
			a.logger.WarnContext(ctx, "revoke of consumed refresh token failed, continuing",
				"token_id", oldID, "error", err)
		}
	}

	refresh, persistence, err := a.mintTrackedRefresh(ctx, user, client)
	if err != nil {
		observability.RecordAuthRefresh("failure")
		return nil, err
	}

	observability.RecordAuthRefresh("success")
	return &RefreshResult{
		AccessToken:        access,
		RefreshToken:       refresh,
		Identity:           summarize(user),
		RefreshPersistence: persistence,
	}, nil
}

// Logout is intentionally stateless: issued tokens stay valid until expiry.
// The hook exists so a blacklist can slot in later without an API change.
func (a *AuthOrchestrator) Logout(ctx context.Context, rawToken string) error {
	if subject, err := a.issuer.ParseSubject(rawToken); err == nil {
		a.logger.InfoContext(ctx, "stateless logout", "subject", subject)
	}
	observability.RecordAuthLogout("stateless")
	return nil
}

// LogoutSession ends the tracked session. False means no active session
// matched the id.
func (a *AuthOrchestrator) LogoutSession(ctx context.Context, sessionID string) (bool, error) {
	ended, err := a.sessions.Deactivate(ctx, sessionID, domain.EndReasonLogout)
	if err != nil {
		return false, err
	}
	observability.RecordAuthLogout("session")
	return ended, nil
}

func (a *AuthOrchestrator) authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := a.creds.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, security.ErrBadCredentials) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	return user, nil
}

// issueTokens mints the access/refresh pair and persists the refresh record.
// Persistence failure degrades the outcome, never the login.
func (a *AuthOrchestrator) issueTokens(ctx context.Context, user *domain.User, client ClientContext) (*LoginResult, error) {
	perms, err := a.permissions.PermissionsFor(ctx, user)
	if err != nil {
		return nil, err
	}
	access, err := a.issuer.MintAccessToken(user, perms)
	if err != nil {
		return nil, err
	}
	refresh, persistence, err := a.mintTrackedRefresh(ctx, user, client)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:        access,
		RefreshToken:       refresh,
		Identity:           summarize(user),
		RefreshPersistence: persistence,
	}, nil
}

// mintTrackedRefresh mints a refresh token whose tokenId claim is backed by
// a stored record. When the store rejects the record it falls back to an
// untracked token: continuity is preserved, server-side revocation is not.
func (a *AuthOrchestrator) mintTrackedRefresh(ctx context.Context, user *domain.User, client ClientContext) (string, Outcome, error) {
	tokenID := uuid.NewString()
	refresh, err := a.issuer.MintRefreshTokenWithID(user.Email, tokenID)
	if err != nil {
		return "", Outcome{}, err
	}
	if _, err := a.store.CreateWithID(ctx, user, tokenID, refresh, client); err != nil {
		a.logger.ErrorContext(ctx, "refresh-token record persistence failed, issuing untracked token",
			"user_id", user.ID, "error", err)
		untracked, mintErr := a.issuer.MintRefreshToken(user.Email)
		if mintErr != nil {
			return "", Outcome{}, mintErr
		}
		return untracked, Degraded("refresh token record not persisted"), nil
	}
	return refresh, OK(), nil
}

// attachTenants resolves the login's multi-tenant reach and flags tenant
// selection when more than one tenant resolves.
func (a *AuthOrchestrator) attachTenants(ctx context.Context, user *domain.User, result *LoginResult) error {
	tenants, err := a.tenants.AccessibleTenantsByEmail(ctx, user.Email)
	if err != nil {
		return err
	}
	if len(tenants) <= 1 {
		return nil
	}
	options, err := a.tenants.TenantOptions(ctx, user.Email)
	if err != nil {
		return err
	}
	result.RequiresTenantSelection = true
	result.Tenants = options
	return nil
}

func summarize(user *domain.User) IdentitySummary {
	return IdentitySummary{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
		TenantID: tenantOf(user),
		BranchID: user.BranchID,
	}
}
