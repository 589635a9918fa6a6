package service

import (
	"context"
	"time"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
)

// CredentialVerifier checks an email/password pair and returns the matched
// identity row. Implementations must not distinguish unknown-user from
// wrong-password in their error.
type CredentialVerifier interface {
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
}

// IdentityDirectory is the read/update surface of the user store needed by
// the auth core.
type IdentityDirectory interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindAllByEmail(ctx context.Context, email string) ([]domain.User, error)
	UpdateLastLoginTime(ctx context.Context, id uint, at time.Time) error
}

// TenantDirectory resolves tenant ids to live (non-deleted) tenants.
type TenantDirectory interface {
	FindByTenantID(ctx context.Context, tenantID string) (*domain.Tenant, error)
}

// RoleAssignmentDirectory exposes per-tenant role assignments.
type RoleAssignmentDirectory interface {
	FindActiveRoles(ctx context.Context, userID uint, tenantID string, asOf time.Time) ([]domain.UserRoleAssignment, error)
	FindTenantRole(ctx context.Context, tenantRoleID string) (*domain.TenantRole, error)
}

// PermissionResolver produces the ordered permission list minted into access
// tokens. The RBAC engine behind it is outside this core.
type PermissionResolver interface {
	PermissionsFor(ctx context.Context, user *domain.User) ([]string, error)
}
