package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/observability"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the identity directory. One email can map to several
// rows, one per tenant; FindByEmail returns the first by id for callers that
// need a single anchor row, FindAllByEmail returns every non-deleted row.
type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindAllByEmail(ctx context.Context, email string) ([]domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	UpdateLastLoginTime(ctx context.Context, id uint, at time.Time) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Preload("Branch").First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "success")
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Preload("Branch").
		Where("email = ? AND is_deleted = ?", NormalizeEmail(email), false).
		Order("id ASC").
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "find_by_email", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_email", "success")
	return &u, nil
}

func (r *GormUserRepository) FindAllByEmail(ctx context.Context, email string) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).Preload("Branch").
		Where("email = ? AND is_deleted = ?", NormalizeEmail(email), false).
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "find_all_by_email", "error")
		return users, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_all_by_email", "success")
	return users, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	user.Email = NormalizeEmail(user.Email)
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", "success")
	return nil
}

func (r *GormUserRepository) UpdateLastLoginTime(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "update_last_login_time", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "update_last_login_time", "success")
	return nil
}

// NormalizeEmail trims and lower-cases an email for lookups, matching how
// rows are stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
