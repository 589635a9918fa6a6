package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/observability"
	"github.com/mindgrove/tenant-auth-service/internal/repository"
	"github.com/mindgrove/tenant-auth-service/internal/security"
)

// ClientContext carries the request attributes stamped onto refresh-token
// records.
type ClientContext struct {
	DeviceID  string
	IPAddress string
	UserAgent string
}

// RefreshTokenStore persists hashed refresh-token records and performs
// rotation. The raw token is hashed on the way in and never stored.
type RefreshTokenStore struct {
	repo     repository.RefreshTokenRepository
	ttl      time.Duration
	hashCost int
	logger   *slog.Logger
}

func NewRefreshTokenStore(repo repository.RefreshTokenRepository, ttl time.Duration, hashCost int, logger *slog.Logger) *RefreshTokenStore {
	return &RefreshTokenStore{repo: repo, ttl: ttl, hashCost: hashCost, logger: logger}
}

func (s *RefreshTokenStore) TTL() time.Duration { return s.ttl }

// Create hashes rawToken, generates a fresh tokenId and persists the record
// with expiry now + TTL.
func (s *RefreshTokenStore) Create(ctx context.Context, user *domain.User, rawToken string, client ClientContext) (*domain.RefreshToken, error) {
	return s.CreateWithID(ctx, user, uuid.NewString(), rawToken, client)
}

// CreateWithID persists a record under a caller-chosen tokenId, used when
// the id was already minted into the token's claims.
func (s *RefreshTokenStore) CreateWithID(ctx context.Context, user *domain.User, tokenID, rawToken string, client ClientContext) (*domain.RefreshToken, error) {
	hash, err := security.HashRefreshToken(rawToken, s.hashCost)
	if err != nil {
		return nil, err
	}
	rec := &domain.RefreshToken{
		TokenID:          tokenID,
		UserID:           user.ID,
		TenantID:         tenantOf(user),
		BranchID:         user.BranchID,
		DeviceID:         client.DeviceID,
		IPAddress:        client.IPAddress,
		UserAgent:        client.UserAgent,
		RefreshTokenHash: hash,
		ExpiresAt:        time.Now().Add(s.ttl),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate reports whether the presented raw token matches a live record.
// Missing, expired, revoked and hash-mismatching tokens all yield the same
// false, so callers cannot enumerate token ids.
func (s *RefreshTokenStore) Validate(ctx context.Context, tokenID, rawToken string) bool {
	rec, err := s.repo.FindByTokenID(ctx, tokenID)
	if err != nil {
		return false
	}
	if !rec.Usable(time.Now()) {
		return false
	}
	return security.CompareRefreshToken(rec.RefreshTokenHash, rawToken)
}

// Revoke is idempotent; revoking an unknown or already-revoked token is a
// no-op.
func (s *RefreshTokenStore) Revoke(ctx context.Context, tokenID string) error {
	return s.repo.Revoke(ctx, tokenID)
}

// RevokeAll bulk-revokes every live record for the user.
func (s *RefreshTokenStore) RevokeAll(ctx context.Context, userID uint) (int64, error) {
	return s.repo.RevokeAllByUserID(ctx, userID)
}

// Rotate revokes the consumed token best-effort and unconditionally creates
// the replacement. A failed revoke is logged, not fatal: login continuity
// wins over strict single-chain guarantees.
func (s *RefreshTokenStore) Rotate(ctx context.Context, oldTokenID string, user *domain.User, newRawToken string, client ClientContext) (*domain.RefreshToken, error) {
	if oldTokenID != "" {
		if err := s.repo.Revoke(ctx, oldTokenID); err != nil {
			s.logger.WarnContext(ctx, "revoke of rotated refresh token failed, continuing",
				"token_id", oldTokenID, "error", err)
		}
	}
	return s.Create(ctx, user, newRawToken, client)
}

// ActiveTokens lists the user's live records, newest first. Tenant
// resolution uses these to find tenants reached from other devices.
func (s *RefreshTokenStore) ActiveTokens(ctx context.Context, userID uint) ([]domain.RefreshToken, error) {
	return s.repo.ListActiveByUserID(ctx, userID, time.Now())
}

// SweepExpired physically deletes records past expiry.
func (s *RefreshTokenStore) SweepExpired(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		return removed, err
	}
	observability.RecordSweep("refresh_token", removed)
	return removed, nil
}

func tenantOf(user *domain.User) string {
	if user.Branch != nil && user.Branch.TenantID != "" {
		return user.Branch.TenantID
	}
	return user.TenantID
}
