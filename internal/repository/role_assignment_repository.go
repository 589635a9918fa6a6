package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/observability"
)

var ErrRoleNotFound = errors.New("tenant role not found")

type RoleAssignmentRepository interface {
	// FindActiveRoles returns assignments in effect on asOf for the
	// (user, tenant) pair; open-ended windows (nil bounds) match any date.
	FindActiveRoles(ctx context.Context, userID uint, tenantID string, asOf time.Time) ([]domain.UserRoleAssignment, error)
	FindTenantRole(ctx context.Context, tenantRoleID string) (*domain.TenantRole, error)
}

type GormRoleAssignmentRepository struct{ db *gorm.DB }

func NewRoleAssignmentRepository(db *gorm.DB) RoleAssignmentRepository {
	return &GormRoleAssignmentRepository{db: db}
}

func (r *GormRoleAssignmentRepository) FindActiveRoles(ctx context.Context, userID uint, tenantID string, asOf time.Time) ([]domain.UserRoleAssignment, error) {
	var assignments []domain.UserRoleAssignment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ? AND is_deleted = ?", userID, tenantID, false).
		Where("effective_from IS NULL OR effective_from <= ?", asOf).
		Where("effective_to IS NULL OR effective_to >= ?", asOf).
		Order("id ASC").
		Find(&assignments).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "role_assignment", "find_active_roles", "error")
		return assignments, err
	}
	observability.RecordRepositoryOperation(ctx, "role_assignment", "find_active_roles", "success")
	return assignments, nil
}

func (r *GormRoleAssignmentRepository) FindTenantRole(ctx context.Context, tenantRoleID string) (*domain.TenantRole, error) {
	var role domain.TenantRole
	err := r.db.WithContext(ctx).
		Where("tenant_role_id = ? AND is_deleted = ?", tenantRoleID, false).
		First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "role_assignment", "find_tenant_role", "not_found")
			return nil, ErrRoleNotFound
		}
		observability.RecordRepositoryOperation(ctx, "role_assignment", "find_tenant_role", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "role_assignment", "find_tenant_role", "success")
	return &role, nil
}
