package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/observability"
)

var ErrTokenNotFound = errors.New("refresh token not found")

type RefreshTokenRepository interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	FindByTokenID(ctx context.Context, tokenID string) (*domain.RefreshToken, error)
	ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.RefreshToken, error)
	Revoke(ctx context.Context, tokenID string) error
	RevokeAllByUserID(ctx context.Context, userID uint) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormRefreshTokenRepository struct{ db *gorm.DB }

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &GormRefreshTokenRepository{db: db}
}

func (r *GormRefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "create", "success")
	return nil
}

func (r *GormRefreshTokenRepository) FindByTokenID(ctx context.Context, tokenID string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "refresh_token", "find_by_token_id", "not_found")
			return nil, ErrTokenNotFound
		}
		observability.RecordRepositoryOperation(ctx, "refresh_token", "find_by_token_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "find_by_token_id", "success")
	return &t, nil
}

func (r *GormRefreshTokenRepository) ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.RefreshToken, error) {
	var tokens []domain.RefreshToken
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, now).
		Order("created_at DESC").
		Find(&tokens).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "list_active_by_user_id", "error")
		return tokens, err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "list_active_by_user_id", "success")
	return tokens, nil
}

// Revoke flips the revoked flag. Revoking an already-revoked or missing
// record is not an error; the predicate simply matches zero rows.
func (r *GormRefreshTokenRepository) Revoke(ctx context.Context, tokenID string) error {
	err := r.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("token_id = ? AND revoked = ?", tokenID, false).
		Update("revoked", true).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "revoke", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "revoke", "success")
	return nil
}

func (r *GormRefreshTokenRepository) RevokeAllByUserID(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "revoke_all_by_user_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "revoke_all_by_user_id", "success")
	return res.RowsAffected, nil
}

// DeleteExpired only removes rows already past expiry, so it is safe to run
// concurrently with live traffic.
func (r *GormRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.RefreshToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "delete_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "delete_expired", "success")
	return res.RowsAffected, nil
}
