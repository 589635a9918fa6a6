package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/observability"
	"github.com/mindgrove/tenant-auth-service/internal/repository"
)

// SessionPolicy controls duplicate-login handling and session lifetimes.
type SessionPolicy struct {
	IdleTimeout           time.Duration
	DuplicateCheckEnabled bool
	AskUserConfirmation   bool
	TerminateExisting     bool
	SuspiciousIPThreshold int64
}

// SessionRegistry tracks active login sessions and resolves duplicates.
type SessionRegistry struct {
	repo   repository.SessionRepository
	policy SessionPolicy
	logger *slog.Logger
}

func NewSessionRegistry(repo repository.SessionRepository, policy SessionPolicy, logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{repo: repo, policy: policy, logger: logger}
}

func (s *SessionRegistry) Policy() SessionPolicy { return s.policy }

// CreateSession first deletes every row sharing sessionID, then inserts the
// new active row. The delete-then-insert keeps the id unique without a
// constraint; it assumes the caller supplies globally unique ids.
func (s *SessionRegistry) CreateSession(ctx context.Context, user *domain.User, sessionID, clientIP, userAgent, loginType string, socialProvider *string) (*domain.Session, error) {
	s.CleanupStale(ctx, sessionID)

	now := time.Now()
	sess := &domain.Session{
		SessionID:      sessionID,
		UserID:         user.ID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.policy.IdleTimeout),
		ClientIP:       clientIP,
		UserAgent:      userAgent,
		LoginType:      loginType,
		SocialProvider: socialProvider,
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// CleanupStale removes every row sharing the id, active or not. Runs as the
// first step of a session login so a client re-using its own id is not
// counted as its own duplicate. Failures are logged and swallowed; the
// duplicate check excludes the id anyway.
func (s *SessionRegistry) CleanupStale(ctx context.Context, sessionID string) {
	if removed, err := s.repo.DeleteBySessionID(ctx, sessionID); err != nil {
		s.logger.WarnContext(ctx, "stale session cleanup failed, continuing",
			"session_id", sessionID, "error", err)
	} else if removed > 0 {
		s.logger.InfoContext(ctx, "removed stale sessions sharing id",
			"session_id", sessionID, "count", removed)
	}
}

// GetActive returns the session iff it is active and unexpired.
func (s *SessionRegistry) GetActive(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.repo.FindActive(ctx, sessionID, time.Now())
}

func (s *SessionRegistry) ActiveSessions(ctx context.Context, userID uint) ([]domain.Session, error) {
	return s.repo.ListActiveByUserID(ctx, userID, time.Now())
}

func (s *SessionRegistry) ActiveCount(ctx context.Context, userID uint) (int64, error) {
	return s.repo.CountActiveByUserID(ctx, userID, time.Now())
}

// CountOthersExcluding counts the user's live sessions other than the given
// id, for "duplicate excluding current" checks.
func (s *SessionRegistry) CountOthersExcluding(ctx context.Context, userID uint, sessionID string) (int64, error) {
	return s.repo.CountActiveExcluding(ctx, userID, sessionID, time.Now())
}

// Deactivate ends one session. Returns false when no active row matched.
func (s *SessionRegistry) Deactivate(ctx context.Context, sessionID, reason string) (bool, error) {
	n, err := s.repo.Deactivate(ctx, sessionID, time.Now(), reason)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeactivateAll ends every active session for the user; used on duplicate
// login resolution and forced termination.
func (s *SessionRegistry) DeactivateAll(ctx context.Context, userID uint, reason string) (int64, error) {
	return s.repo.DeactivateAllByUserID(ctx, userID, time.Now(), reason)
}

// Touch refreshes the sliding activity window of an active session.
func (s *SessionRegistry) Touch(ctx context.Context, sessionID string) (bool, error) {
	sess, err := s.GetActive(ctx, sessionID)
	if err != nil {
		if err == repository.ErrSessionNotFound {
			return false, nil
		}
		return false, err
	}
	if err := s.TouchSession(ctx, sess); err != nil {
		return false, err
	}
	return true, nil
}

// TouchSession slides the activity window of an already-loaded session.
// Callers that just fetched the row use this to avoid a second read.
func (s *SessionRegistry) TouchSession(ctx context.Context, sess *domain.Session) error {
	now := time.Now()
	sess.LastActivityAt = now
	sess.ExpiresAt = now.Add(s.policy.IdleTimeout)
	return s.repo.Save(ctx, sess)
}

// Extend pushes expiry forward by the given minutes.
func (s *SessionRegistry) Extend(ctx context.Context, sessionID string, minutes int) (bool, error) {
	sess, err := s.GetActive(ctx, sessionID)
	if err != nil {
		if err == repository.ErrSessionNotFound {
			return false, nil
		}
		return false, err
	}
	sess.ExpiresAt = sess.ExpiresAt.Add(time.Duration(minutes) * time.Minute)
	if err := s.repo.Save(ctx, sess); err != nil {
		return false, err
	}
	return true, nil
}

// SweepExpired bulk-deactivates sessions past expiry.
func (s *SessionRegistry) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeactivateExpired(ctx, time.Now())
	if err != nil {
		return n, err
	}
	observability.RecordSweep("session", n)
	return n, nil
}

// SuspiciousByIP flags an IP holding at least the configured number of
// active sessions. Heuristic signal only; no enforcement happens here.
func (s *SessionRegistry) SuspiciousByIP(ctx context.Context, clientIP string) (bool, error) {
	n, err := s.repo.CountActiveByClientIP(ctx, clientIP, time.Now())
	if err != nil {
		return false, err
	}
	suspicious := n >= s.policy.SuspiciousIPThreshold
	if suspicious {
		s.logger.WarnContext(ctx, "suspicious session activity from ip",
			"client_ip", clientIP, "active_sessions", n)
	}
	return suspicious, nil
}
