package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
	"github.com/mindgrove/tenant-auth-service/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type inMemoryRefreshTokenRepo struct {
	mu         sync.Mutex
	byID       map[string]*domain.RefreshToken
	failCreate bool
	failRevoke bool
}

func newInMemoryRefreshTokenRepo() *inMemoryRefreshTokenRepo {
	return &inMemoryRefreshTokenRepo{byID: map[string]*domain.RefreshToken{}}
}

func (r *inMemoryRefreshTokenRepo) Create(_ context.Context, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return errors.New("storage unavailable")
	}
	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.byID[cp.TokenID] = &cp
	return nil
}

func (r *inMemoryRefreshTokenRepo) FindByTokenID(_ context.Context, tokenID string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[tokenID]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryRefreshTokenRepo) ListActiveByUserID(_ context.Context, userID uint, now time.Time) ([]domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.RefreshToken
	for _, t := range r.byID {
		if t.UserID == userID && t.Usable(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *inMemoryRefreshTokenRepo) Revoke(_ context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRevoke {
		return errors.New("storage unavailable")
	}
	if t, ok := r.byID[tokenID]; ok {
		t.Revoked = true
	}
	return nil
}

func (r *inMemoryRefreshTokenRepo) RevokeAllByUserID(_ context.Context, userID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.byID {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

func (r *inMemoryRefreshTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.byID {
		if !now.Before(t.ExpiresAt) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

type inMemorySessionRepo struct {
	mu              sync.Mutex
	rows            []*domain.Session
	findActiveCalls int
}

func newInMemorySessionRepo() *inMemorySessionRepo {
	return &inMemorySessionRepo{}
}

func (r *inMemorySessionRepo) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *inMemorySessionRepo) Save(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, row := range r.rows {
		if row.SessionID == s.SessionID {
			cp := *s
			r.rows[i] = &cp
			return nil
		}
	}
	cp := *s
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *inMemorySessionRepo) DeleteBySessionID(_ context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*domain.Session
	var n int64
	for _, row := range r.rows {
		if row.SessionID == sessionID {
			n++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return n, nil
}

func (r *inMemorySessionRepo) FindBySessionID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.SessionID == sessionID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (r *inMemorySessionRepo) FindActive(_ context.Context, sessionID string, now time.Time) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findActiveCalls++
	for _, row := range r.rows {
		if row.SessionID == sessionID && row.Current(now) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (r *inMemorySessionRepo) ListActiveByUserID(_ context.Context, userID uint, now time.Time) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, row := range r.rows {
		if row.UserID == userID && row.Current(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *inMemorySessionRepo) ListActivePaged(ctx context.Context, userID uint, now time.Time, _ repository.PageRequest) (repository.PageResult[domain.Session], error) {
	rows, err := r.ListActiveByUserID(ctx, userID, now)
	return repository.PageResult[domain.Session]{Items: rows, Total: int64(len(rows))}, err
}

func (r *inMemorySessionRepo) CountActiveByUserID(ctx context.Context, userID uint, now time.Time) (int64, error) {
	sessions, err := r.ListActiveByUserID(ctx, userID, now)
	return int64(len(sessions)), err
}

func (r *inMemorySessionRepo) CountActiveExcluding(_ context.Context, userID uint, excludeSessionID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.UserID == userID && row.SessionID != excludeSessionID && row.Current(now) {
			n++
		}
	}
	return n, nil
}

func (r *inMemorySessionRepo) CountActiveByClientIP(_ context.Context, clientIP string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.ClientIP == clientIP && row.Current(now) {
			n++
		}
	}
	return n, nil
}

func (r *inMemorySessionRepo) Deactivate(_ context.Context, sessionID string, now time.Time, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.SessionID == sessionID && row.IsActive {
			row.IsActive = false
			endedAt := now
			row.EndedAt = &endedAt
			rs := reason
			row.EndReason = &rs
			n++
		}
	}
	return n, nil
}

func (r *inMemorySessionRepo) DeactivateAllByUserID(_ context.Context, userID uint, now time.Time, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.UserID == userID && row.IsActive {
			row.IsActive = false
			endedAt := now
			row.EndedAt = &endedAt
			rs := reason
			row.EndReason = &rs
			n++
		}
	}
	return n, nil
}

func (r *inMemorySessionRepo) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.IsActive && !now.Before(row.ExpiresAt) {
			row.IsActive = false
			endedAt := now
			row.EndedAt = &endedAt
			rs := domain.EndReasonExpired
			row.EndReason = &rs
			n++
		}
	}
	return n, nil
}

type inMemoryUserDirectory struct {
	mu    sync.Mutex
	users []*domain.User
}

func newInMemoryUserDirectory(users ...*domain.User) *inMemoryUserDirectory {
	return &inMemoryUserDirectory{users: users}
}

func (d *inMemoryUserDirectory) FindByID(_ context.Context, id uint) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.ID == id && !u.IsDeleted {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (d *inMemoryUserDirectory) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	users, err := d.FindAllByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, repository.ErrUserNotFound
	}
	return &users[0], nil
}

func (d *inMemoryUserDirectory) FindAllByEmail(_ context.Context, email string) ([]domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	normalized := repository.NormalizeEmail(email)
	var out []domain.User
	for _, u := range d.users {
		if repository.NormalizeEmail(u.Email) == normalized && !u.IsDeleted {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (d *inMemoryUserDirectory) Create(_ context.Context, user *domain.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *user
	d.users = append(d.users, &cp)
	return nil
}

func (d *inMemoryUserDirectory) UpdateLastLoginTime(_ context.Context, id uint, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.ID == id {
			stamp := at
			u.LastLoginAt = &stamp
			return nil
		}
	}
	return repository.ErrUserNotFound
}

type inMemoryTenantDirectory struct {
	tenants map[string]*domain.Tenant
}

func newInMemoryTenantDirectory(tenants ...*domain.Tenant) *inMemoryTenantDirectory {
	d := &inMemoryTenantDirectory{tenants: map[string]*domain.Tenant{}}
	for _, t := range tenants {
		d.tenants[t.TenantID] = t
	}
	return d
}

func (d *inMemoryTenantDirectory) FindByTenantID(_ context.Context, tenantID string) (*domain.Tenant, error) {
	t, ok := d.tenants[tenantID]
	if !ok || t.IsDeleted {
		return nil, repository.ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

type inMemoryRoleDirectory struct {
	assignments []domain.UserRoleAssignment
	roles       map[string]*domain.TenantRole
}

func newInMemoryRoleDirectory() *inMemoryRoleDirectory {
	return &inMemoryRoleDirectory{roles: map[string]*domain.TenantRole{}}
}

func (d *inMemoryRoleDirectory) FindActiveRoles(_ context.Context, userID uint, tenantID string, asOf time.Time) ([]domain.UserRoleAssignment, error) {
	var out []domain.UserRoleAssignment
	for _, a := range d.assignments {
		if a.UserID == userID && a.TenantID == tenantID && a.ActiveOn(asOf) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *inMemoryRoleDirectory) FindTenantRole(_ context.Context, tenantRoleID string) (*domain.TenantRole, error) {
	role, ok := d.roles[tenantRoleID]
	if !ok {
		return nil, repository.ErrRoleNotFound
	}
	cp := *role
	return &cp, nil
}

type staticPermissionResolver struct {
	permissions []string
	err         error
}

func (r *staticPermissionResolver) PermissionsFor(context.Context, *domain.User) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.permissions, nil
}
