package service

import (
	"context"
	"sync"
	"time"
)

// PermissionCacheStore caches resolved permission lists per (user, tenant).
// Invalidation is epoch-based: bumping an epoch orphans old keys instead of
// scanning for them; orphans age out via TTL.
type PermissionCacheStore interface {
	Get(ctx context.Context, userID uint, tenantID string) ([]string, bool, error)
	Set(ctx context.Context, userID uint, tenantID string, permissions []string, ttl time.Duration) error
	InvalidateUser(ctx context.Context, userID uint) error
	InvalidateAll(ctx context.Context) error
}

type NoopPermissionCacheStore struct{}

func NewNoopPermissionCacheStore() *NoopPermissionCacheStore {
	return &NoopPermissionCacheStore{}
}

func (s *NoopPermissionCacheStore) Get(context.Context, uint, string) ([]string, bool, error) {
	return nil, false, nil
}

func (s *NoopPermissionCacheStore) Set(context.Context, uint, string, []string, time.Duration) error {
	return nil
}

func (s *NoopPermissionCacheStore) InvalidateUser(context.Context, uint) error {
	return nil
}

func (s *NoopPermissionCacheStore) InvalidateAll(context.Context) error {
	return nil
}

type permissionCacheEntry struct {
	permissions []string
	expiresAt   time.Time
}

type InMemoryPermissionCacheStore struct {
	mu          sync.RWMutex
	data        map[string]permissionCacheEntry
	globalEpoch uint64
	userEpoch   map[uint]uint64
}

func NewInMemoryPermissionCacheStore() *InMemoryPermissionCacheStore {
	return &InMemoryPermissionCacheStore{
		data:      make(map[string]permissionCacheEntry),
		userEpoch: make(map[uint]uint64),
	}
}

func (s *InMemoryPermissionCacheStore) Get(_ context.Context, userID uint, tenantID string) ([]string, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	key := s.cacheKeyLocked(userID, tenantID)
	entry, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]string(nil), entry.permissions...), true, nil
}

func (s *InMemoryPermissionCacheStore) Set(_ context.Context, userID uint, tenantID string, permissions []string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.cacheKeyLocked(userID, tenantID)
	s.data[key] = permissionCacheEntry{
		permissions: append([]string(nil), permissions...),
		expiresAt:   time.Now().UTC().Add(ttl),
	}
	return nil
}

func (s *InMemoryPermissionCacheStore) InvalidateUser(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userEpoch[userID]++
	return nil
}

func (s *InMemoryPermissionCacheStore) InvalidateAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalEpoch++
	return nil
}

func (s *InMemoryPermissionCacheStore) cacheKeyLocked(userID uint, tenantID string) string {
	return buildPermissionCacheKey(s.globalEpoch, s.userEpoch[userID], userID, tenantID)
}
