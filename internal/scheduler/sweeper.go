package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mindgrove/tenant-auth-service/internal/service"
)

// Sweeper periodically removes expired refresh-token records and
// deactivates expired sessions. Both sweeps only touch rows already past
// their deadline, so running alongside live traffic is safe.
type Sweeper struct {
	tokens   *service.RefreshTokenStore
	sessions *service.SessionRegistry
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(tokens *service.RefreshTokenStore, sessions *service.SessionRegistry, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{tokens: tokens, sessions: sessions, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping on every tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs both sweeps; failures are logged and do not stop the loop.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if removed, err := s.tokens.SweepExpired(ctx); err != nil {
		s.logger.ErrorContext(ctx, "refresh-token sweep failed", "error", err)
	} else if removed > 0 {
		s.logger.InfoContext(ctx, "swept expired refresh tokens", "removed", removed)
	}

	if ended, err := s.sessions.SweepExpired(ctx); err != nil {
		s.logger.ErrorContext(ctx, "session sweep failed", "error", err)
	} else if ended > 0 {
		s.logger.InfoContext(ctx, "swept expired sessions", "ended", ended)
	}
}
