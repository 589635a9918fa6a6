package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/repository"
)

// TenantRoleInfo is the resolved per-tenant role, distinct from the legacy
// global role string on the identity.
type TenantRoleInfo struct {
	TenantRoleID string `json:"tenant_role_id"`
	Name         string `json:"name"`
	Label        string `json:"label,omitempty"`
	BranchID     *uint  `json:"branch_id,omitempty"`
}

// TenantInfo is one selectable tenant in a multi-tenant login response.
type TenantInfo struct {
	TenantID     string              `json:"tenant_id"`
	Name         string              `json:"name"`
	BusinessType string              `json:"business_type,omitempty"`
	Status       domain.TenantStatus `json:"status,omitempty"`
	LegacyRole   string              `json:"role,omitempty"`
	TenantRole   *TenantRoleInfo     `json:"tenant_role,omitempty"`
}

// TenantResolver answers which tenants an identity can act in and which one
// is the default. One email may own independent identity rows in several
// tenants; resolution unions them all.
type TenantResolver struct {
	users      IdentityDirectory
	tenants    TenantDirectory
	roles      RoleAssignmentDirectory
	tokens     *RefreshTokenStore
	missing    NegativeLookupCacheStore
	missingTTL time.Duration
	logger     *slog.Logger
}

// missingTenantNamespace caches tenant ids that resolved to nothing. Stale
// branch rows and revoked-token remnants reference dead tenants on every
// login, so the repeated misses are worth short-circuiting.
const missingTenantNamespace = "tenant.not_found"

func NewTenantResolver(users IdentityDirectory, tenants TenantDirectory, roles RoleAssignmentDirectory, tokens *RefreshTokenStore, logger *slog.Logger) *TenantResolver {
	return &TenantResolver{
		users:   users,
		tenants: tenants,
		roles:   roles,
		tokens:  tokens,
		missing: NewNoopNegativeLookupCacheStore(),
		logger:  logger,
	}
}

// WithMissingTenantCache short-circuits lookups of tenant ids already known
// to be absent. Entries expire after ttl, so a re-created tenant becomes
// visible again without an explicit invalidation.
func (r *TenantResolver) WithMissingTenantCache(store NegativeLookupCacheStore, ttl time.Duration) *TenantResolver {
	if store != nil && ttl > 0 {
		r.missing = store
		r.missingTTL = ttl
	}
	return r
}

// AccessibleTenants resolves the tenant set reachable by a user id: the
// tenant implied by each identity row sharing the user's email (branch
// tenant and the row's own tenant id) plus tenants referenced by the user's
// live refresh-token records. Soft-deleted tenants are dropped.
func (r *TenantResolver) AccessibleTenants(ctx context.Context, userID uint) ([]domain.Tenant, error) {
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, NewFailure(FailureNotFound, "user not found")
		}
		return nil, err
	}

	ids := newTenantIDSet()
	rows, err := r.users.FindAllByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		rows = []domain.User{*user}
	}
	for i := range rows {
		collectIdentityTenants(ids, &rows[i])
	}
	if err := r.collectTokenTenants(ctx, ids, userID); err != nil {
		r.logger.WarnContext(ctx, "token-derived tenant lookup failed, continuing",
			"user_id", userID, "error", err)
	}
	return r.lookupTenants(ctx, ids)
}

// AccessibleTenantsByEmail computes the same union over every non-deleted
// identity row sharing the email (trimmed, case-insensitive).
func (r *TenantResolver) AccessibleTenantsByEmail(ctx context.Context, email string) ([]domain.Tenant, error) {
	rows, err := r.users.FindAllByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	ids := newTenantIDSet()
	for i := range rows {
		collectIdentityTenants(ids, &rows[i])
		if err := r.collectTokenTenants(ctx, ids, rows[i].ID); err != nil {
			r.logger.WarnContext(ctx, "token-derived tenant lookup failed, continuing",
				"user_id", rows[i].ID, "error", err)
		}
	}
	return r.lookupTenants(ctx, ids)
}

func (r *TenantResolver) IsMultiTenant(ctx context.Context, userID uint) (bool, error) {
	tenants, err := r.AccessibleTenants(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(tenants) > 1, nil
}

func (r *TenantResolver) HasAccess(ctx context.Context, userID uint, tenantID string) (bool, error) {
	tenants, err := r.AccessibleTenants(ctx, userID)
	if err != nil {
		return false, err
	}
	return containsTenant(tenants, tenantID), nil
}

func (r *TenantResolver) HasAccessByEmail(ctx context.Context, email, tenantID string) (bool, error) {
	tenants, err := r.AccessibleTenantsByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return containsTenant(tenants, tenantID), nil
}

// DefaultTenant picks, in priority order: the tenant of the most recently
// created live refresh-token record, the tenant of the identity's current
// branch, then the first resolved tenant. Nil when nothing resolves.
func (r *TenantResolver) DefaultTenant(ctx context.Context, userID uint) (*domain.Tenant, error) {
	tokens, err := r.tokens.ActiveTokens(ctx, userID)
	if err == nil && len(tokens) > 0 {
		latest := tokens[0]
		for _, t := range tokens[1:] {
			if t.CreatedAt.After(latest.CreatedAt) {
				latest = t
			}
		}
		if latest.TenantID != "" {
			if tenant, err := r.tenants.FindByTenantID(ctx, latest.TenantID); err == nil {
				return tenant, nil
			}
		}
	}

	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, NewFailure(FailureNotFound, "user not found")
		}
		return nil, err
	}
	if id := tenantOf(user); id != "" {
		if tenant, err := r.tenants.FindByTenantID(ctx, id); err == nil {
			return tenant, nil
		}
	}

	tenants, err := r.AccessibleTenants(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(tenants) > 0 {
		return &tenants[0], nil
	}
	return nil, nil
}

// TenantRole picks, among the assignments active today for (user, tenant),
// the one with the most recent EffectiveFrom. When every EffectiveFrom is
// absent the first record wins; that fallback is deliberate, not a guessed
// tie-break. Nil when no assignment is active.
func (r *TenantResolver) TenantRole(ctx context.Context, userID uint, tenantID string) (*TenantRoleInfo, error) {
	assignments, err := r.roles.FindActiveRoles(ctx, userID, tenantID, time.Now())
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}

	sort.SliceStable(assignments, func(i, j int) bool {
		a, b := assignments[i].EffectiveFrom, assignments[j].EffectiveFrom
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	chosen := assignments[0]

	role, err := r.roles.FindTenantRole(ctx, chosen.TenantRoleID)
	if err != nil {
		if errors.Is(err, repository.ErrRoleNotFound) {
			r.logger.WarnContext(ctx, "assignment references missing tenant role",
				"tenant_role_id", chosen.TenantRoleID, "user_id", userID)
			return nil, nil
		}
		return nil, err
	}
	return &TenantRoleInfo{
		TenantRoleID: role.TenantRoleID,
		Name:         role.Name,
		Label:        role.Label,
		BranchID:     chosen.BranchID,
	}, nil
}

// TenantOptions builds the per-tenant selection entries for a login
// response: one entry per identity row with a resolvable live tenant.
func (r *TenantResolver) TenantOptions(ctx context.Context, email string) ([]TenantInfo, error) {
	rows, err := r.users.FindAllByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var infos []TenantInfo
	for i := range rows {
		row := &rows[i]
		id := tenantOf(row)
		if id == "" || seen[id] {
			continue
		}
		tenant, err := r.findTenant(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrTenantNotFound) {
				continue
			}
			return nil, err
		}
		seen[id] = true
		roleInfo, err := r.TenantRole(ctx, row.ID, id)
		if err != nil {
			return nil, err
		}
		infos = append(infos, TenantInfo{
			TenantID:     tenant.TenantID,
			Name:         tenant.Name,
			BusinessType: tenant.BusinessType,
			Status:       tenant.Status,
			LegacyRole:   row.Role,
			TenantRole:   roleInfo,
		})
	}
	return infos, nil
}

type tenantIDSet struct {
	order []string
	seen  map[string]bool
}

func newTenantIDSet() *tenantIDSet {
	return &tenantIDSet{seen: map[string]bool{}}
}

func (s *tenantIDSet) add(id string) {
	if id == "" || s.seen[id] {
		return
	}
	s.seen[id] = true
	s.order = append(s.order, id)
}

func collectIdentityTenants(ids *tenantIDSet, user *domain.User) {
	if user.IsDeleted {
		return
	}
	if user.Branch != nil {
		ids.add(user.Branch.TenantID)
	}
	ids.add(user.TenantID)
}

func (r *TenantResolver) collectTokenTenants(ctx context.Context, ids *tenantIDSet, userID uint) error {
	tokens, err := r.tokens.ActiveTokens(ctx, userID)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		ids.add(t.TenantID)
	}
	return nil
}

func (r *TenantResolver) lookupTenants(ctx context.Context, ids *tenantIDSet) ([]domain.Tenant, error) {
	tenants := make([]domain.Tenant, 0, len(ids.order))
	for _, id := range ids.order {
		tenant, err := r.findTenant(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrTenantNotFound) {
				continue
			}
			return nil, err
		}
		tenants = append(tenants, *tenant)
	}
	return tenants, nil
}

// findTenant consults the missing-tenant cache before the directory and
// records fresh misses. Cache failures fall through to the directory.
func (r *TenantResolver) findTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	if known, err := r.missing.Get(ctx, missingTenantNamespace, tenantID); err != nil {
		r.logger.WarnContext(ctx, "missing-tenant cache read failed", "tenant_id", tenantID, "error", err)
	} else if known {
		return nil, repository.ErrTenantNotFound
	}

	tenant, err := r.tenants.FindByTenantID(ctx, tenantID)
	if errors.Is(err, repository.ErrTenantNotFound) {
		if cacheErr := r.missing.Set(ctx, missingTenantNamespace, tenantID, r.missingTTL); cacheErr != nil {
			r.logger.WarnContext(ctx, "missing-tenant cache write failed", "tenant_id", tenantID, "error", cacheErr)
		}
	}
	return tenant, err
}

func containsTenant(tenants []domain.Tenant, tenantID string) bool {
	for _, t := range tenants {
		if t.TenantID == tenantID {
			return true
		}
	}
	return false
}
