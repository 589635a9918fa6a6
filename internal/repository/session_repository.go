package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/observability"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	Save(ctx context.Context, s *domain.Session) error
	DeleteBySessionID(ctx context.Context, sessionID string) (int64, error)
	FindBySessionID(ctx context.Context, sessionID string) (*domain.Session, error)
	FindActive(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error)
	ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.Session, error)
	ListActivePaged(ctx context.Context, userID uint, now time.Time, req PageRequest) (PageResult[domain.Session], error)
	CountActiveByUserID(ctx context.Context, userID uint, now time.Time) (int64, error)
	CountActiveExcluding(ctx context.Context, userID uint, excludeSessionID string, now time.Time) (int64, error)
	CountActiveByClientIP(ctx context.Context, clientIP string, now time.Time) (int64, error)
	Deactivate(ctx context.Context, sessionID string, now time.Time, reason string) (int64, error)
	DeactivateAllByUserID(ctx context.Context, userID uint, now time.Time, reason string) (int64, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) Save(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Save(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "save", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "save", "success")
	return nil
}

// DeleteBySessionID removes every row sharing the id regardless of state.
// Run before insert so the id holds at most one current row.
func (r *GormSessionRepository) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "delete_by_session_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete_by_session_id", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_session_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_session_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_session_id", "success")
	return &s, nil
}

func (r *GormSessionRepository) FindActive(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND is_active = ? AND expires_at > ?", sessionID, true, now).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_active", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_active", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_active", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, now).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "success")
	return sessions, nil
}

// ListActivePaged serves operator tooling; newest sessions first.
func (r *GormSessionRepository) ListActivePaged(ctx context.Context, userID uint, now time.Time, req PageRequest) (PageResult[domain.Session], error) {
	req = normalizePageRequest(req)
	out := PageResult[domain.Session]{Page: req.Page, PageSize: req.PageSize}

	q := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, now)
	if err := q.Count(&out.Total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_active_paged", "error")
		return out, err
	}
	err := q.Order("created_at DESC").
		Offset(req.offset()).
		Limit(req.PageSize).
		Find(&out.Items).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_active_paged", "error")
		return out, err
	}
	out.TotalPages = calcTotalPages(out.Total, req.PageSize)
	observability.RecordRepositoryOperation(ctx, "session", "list_active_paged", "success")
	return out, nil
}

func (r *GormSessionRepository) CountActiveByUserID(ctx context.Context, userID uint, now time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, now).
		Count(&n).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "count_active_by_user_id", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "count_active_by_user_id", "success")
	return n, nil
}

func (r *GormSessionRepository) CountActiveExcluding(ctx context.Context, userID uint, excludeSessionID string, now time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND session_id <> ? AND is_active = ? AND expires_at > ?", userID, excludeSessionID, true, now).
		Count(&n).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "count_active_excluding", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "count_active_excluding", "success")
	return n, nil
}

func (r *GormSessionRepository) CountActiveByClientIP(ctx context.Context, clientIP string, now time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("client_ip = ? AND is_active = ? AND expires_at > ?", clientIP, true, now).
		Count(&n).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "count_active_by_client_ip", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "count_active_by_client_ip", "success")
	return n, nil
}

func (r *GormSessionRepository) Deactivate(ctx context.Context, sessionID string, now time.Time, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Updates(map[string]any{"is_active": false, "ended_at": now, "end_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "deactivate", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "deactivate", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) DeactivateAllByUserID(ctx context.Context, userID uint, now time.Time, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]any{"is_active": false, "ended_at": now, "end_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "deactivate_all_by_user_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "deactivate_all_by_user_id", "success")
	return res.RowsAffected, nil
}

// DeactivateExpired acts only on rows already past their deadline; the
// predicate is monotonic, so re-running it concurrently is harmless.
func (r *GormSessionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Updates(map[string]any{"is_active": false, "ended_at": now, "end_reason": domain.EndReasonExpired})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "deactivate_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "deactivate_expired", "success")
	return res.RowsAffected, nil
}
