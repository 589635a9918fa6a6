package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/observability"
)

var ErrTenantNotFound = errors.New("tenant not found")

type TenantRepository interface {
	// FindByTenantID returns the tenant iff it is not soft-deleted.
	FindByTenantID(ctx context.Context, tenantID string) (*domain.Tenant, error)
	Create(ctx context.Context, t *domain.Tenant) error
}

type GormTenantRepository struct{ db *gorm.DB }

func NewTenantRepository(db *gorm.DB) TenantRepository { return &GormTenantRepository{db: db} }

func (r *GormTenantRepository) FindByTenantID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "tenant", "find_by_tenant_id", "not_found")
			return nil, ErrTenantNotFound
		}
		observability.RecordRepositoryOperation(ctx, "tenant", "find_by_tenant_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "tenant", "find_by_tenant_id", "success")
	return &t, nil
}

func (r *GormTenantRepository) Create(ctx context.Context, t *domain.Tenant) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "tenant", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "tenant", "create", "success")
	return nil
}
