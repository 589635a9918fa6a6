package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
)

// defaultPermissionMatrix maps a legacy role to its permission list. The
// full RBAC engine lives outside this core; the matrix covers the counseling
// backend's built-in roles for token minting.
var defaultPermissionMatrix = map[string][]string{
	"ROLE_DIRECTOR": {
		"schedule:read", "schedule:write",
		"counsel:read", "counsel:write",
		"payment:read", "payment:write",
		"statistics:read",
		"member:read", "member:write",
	},
	"ROLE_MANAGER": {
		"schedule:read", "schedule:write",
		"counsel:read", "counsel:write",
		"payment:read",
		"member:read", "member:write",
	},
	"ROLE_COUNSELOR": {
		"schedule:read", "schedule:write",
		"counsel:read", "counsel:write",
		"member:read",
	},
	"ROLE_STAFF": {
		"schedule:read",
		"counsel:read",
		"member:read",
	},
}

// MatrixPermissionResolver resolves permissions from a static role matrix.
// Unknown roles resolve to no permissions rather than an error.
type MatrixPermissionResolver struct {
	matrix map[string][]string
}

func NewMatrixPermissionResolver() *MatrixPermissionResolver {
	return &MatrixPermissionResolver{matrix: defaultPermissionMatrix}
}

func NewMatrixPermissionResolverWith(matrix map[string][]string) *MatrixPermissionResolver {
	return &MatrixPermissionResolver{matrix: matrix}
}

func (r *MatrixPermissionResolver) PermissionsFor(_ context.Context, user *domain.User) ([]string, error) {
	perms, ok := r.matrix[user.Role]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), perms...), nil
}

// CachedPermissionResolver caches another resolver's output per user and
// tenant. Cache failures fall through to the inner resolver.
type CachedPermissionResolver struct {
	inner  PermissionResolver
	store  PermissionCacheStore
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedPermissionResolver(inner PermissionResolver, store PermissionCacheStore, ttl time.Duration, logger *slog.Logger) *CachedPermissionResolver {
	return &CachedPermissionResolver{inner: inner, store: store, ttl: ttl, logger: logger}
}

func (r *CachedPermissionResolver) PermissionsFor(ctx context.Context, user *domain.User) ([]string, error) {
	tenantID := tenantOf(user)
	if r.store != nil && r.ttl > 0 {
		cached, ok, err := r.store.Get(ctx, user.ID, tenantID)
		if err != nil {
			r.logger.WarnContext(ctx, "permission cache read failed, resolving directly",
				"user_id", user.ID, "error", err)
		} else if ok {
			return cached, nil
		}
	}
	perms, err := r.inner.PermissionsFor(ctx, user)
	if err != nil {
		return nil, err
	}
	if r.store != nil && r.ttl > 0 {
		if err := r.store.Set(ctx, user.ID, tenantID, perms, r.ttl); err != nil {
			r.logger.WarnContext(ctx, "permission cache write failed",
				"user_id", user.ID, "error", err)
		}
	}
	return perms, nil
}

func (r *CachedPermissionResolver) InvalidateUser(ctx context.Context, userID uint) error {
	if r.store == nil {
		return nil
	}
	return r.store.InvalidateUser(ctx, userID)
}

func (r *CachedPermissionResolver) InvalidateAll(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	return r.store.InvalidateAll(ctx)
}

func buildPermissionCacheKey(globalEpoch, userEpoch uint64, userID uint, tenantID string) string {
	if tenantID == "" {
		tenantID = "none"
	}
	return fmt.Sprintf("authperm:g%d:u%d:user:%d:t:%s", globalEpoch, userEpoch, userID, tenantID)
}
