package service

import (
	"context"
	"testing"
	"time"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
)

func newRegistryForTest(repo *inMemorySessionRepo, policy SessionPolicy) *SessionRegistry {
	if policy.IdleTimeout == 0 {
		policy.IdleTimeout = 30 * time.Minute
	}
	if policy.SuspiciousIPThreshold == 0 {
		policy.SuspiciousIPThreshold = 5
	}
	return NewSessionRegistry(repo, policy, testLogger())
}

func TestCreateSessionReplacesRowsSharingID(t *testing.T) {
	ctx := context.Background()
	repo := newInMemorySessionRepo()
	reg := newRegistryForTest(repo, SessionPolicy{})
	user := testUser()

	if _, err := reg.CreateSession(ctx, user, "S1", "10.0.0.1", "ua", domain.LoginTypeNormal, nil); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := reg.CreateSession(ctx, user, "S1", "10.0.0.2", "ua", domain.LoginTypeNormal, nil); err != nil {
		t.Fatalf("second create: %v", err)
	}

	repo.mu.Lock()
	count := len(repo.rows)
	repo.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one row for the session id, got %d", count)
	}
	sess, err := reg.GetActive(ctx, "S1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if sess.ClientIP != "10.0.0.2" {
		t.Fatalf("expected the replacement row, got ip %s", sess.ClientIP)
	}
}

func TestGetActiveIgnoresExpiredSessions(t *testing.T) {
	ctx := context.Background()
	repo := newInMemorySessionRepo()
	reg := newRegistryForTest(repo, SessionPolicy{})

	sess, err := reg.CreateSession(ctx, testUser(), "S1", "ip", "ua", domain.LoginTypeNormal, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.mu.Lock()
	repo.rows[0].ExpiresAt = time.Now().Add(-time.Minute)
	repo.mu.Unlock()

	if _, err := reg.GetActive(ctx, sess.SessionID); err == nil {
		t.Fatal("expired session must not be returned as active")
	}
}

func TestTouchSlidesExpiry(t *testing.T) {
	ctx := context.Background()
	repo := newInMemorySessionRepo()
	reg := newRegistryForTest(repo, SessionPolicy{IdleTimeout: 30 * time.Minute})

	sess, err := reg.CreateSession(ctx, testUser(), "S1", "ip", "ua", domain.LoginTypeNormal, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.mu.Lock()
	repo.rows[0].ExpiresAt = time.Now().Add(time.Minute)
	repo.mu.Unlock()

	ok, err := reg.Touch(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !ok {
		t.Fatal("touch of an active session must report true")
	}
	refreshed, err := reg.GetActive(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if refreshed.ExpiresAt.Before(time.Now().Add(29 * time.Minute)) {
		t.Fatal("expected expiry pushed out by the idle timeout")
	}

	ok, err = reg.Touch(ctx, "unknown")
	if err != nil {
		t.Fatalf("touch unknown: %v", err)
	}
	if ok {
		t.Fatal("touch of an unknown session must report false")
	}
}

func TestExtendPushesExpiry(t *testing.T) {
	ctx := context.Background()
	repo := newInMemorySessionRepo()
	reg := newRegistryForTest(repo, SessionPolicy{})

	sess, err := reg.CreateSession(ctx, testUser(), "S1", "ip", "ua", domain.LoginTypeNormal, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := sess.ExpiresAt

	ok, err := reg.Extend(ctx, sess.SessionID, 15)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if !ok {
		t.Fatal("extend of an active session must report true")
	}
	extended, err := reg.GetActive(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got := extended.ExpiresAt.Sub(before); got != 15*time.Minute {
		t.Fatalf("expected expiry moved by 15m, got %v", got)
	}
}

func TestDeactivateRecordsReason(t *testing.T) {
	ctx := context.Background()
	repo := newInMemorySessionRepo()
	reg := newRegistryForTest(repo, SessionPolicy{})

	sess, err := reg.CreateSession(ctx, testUser(), "S1", "ip", "ua", domain.LoginTypeNormal, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ended, err := reg.Deactivate(ctx, sess.SessionID, domain.EndReasonLogout)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if !ended {
		t.Fatal("expected an active session to be ended")
	}

	row, err := repo.FindBySessionID(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if row.IsActive {
		t.Error("session must be inactive after deactivate")
	}
	if row.EndReason == nil || *row.EndReason != domain.EndReasonLogout {
		t.Error("expected logout end reason on the row")
	}
	if row.EndedAt == nil {
		t.Error("expected ended-at stamp on the row")
	}

	ended, err = reg.Deactivate(ctx, sess.SessionID, domain.EndReasonLogout)
	if err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
	if ended {
		t.Error("second deactivate must report no active row matched")
	}
}

func TestDeactivateAllEndsEverySession(t *testing.T) {
	ctx := context.Background()
	repo := newInMemorySessionRepo()
	reg := newRegistryForTest(repo, SessionPolicy{})
	user := testUser()

	for _, id := range []string{"S1", "S2", "S3"} {
		if _, err := reg.CreateSession(ctx, user, id, "ip", "ua", domain.LoginTypeNormal, nil); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	n, err := reg.DeactivateAll(ctx, user.ID, domain.EndReasonDuplicateLogin)
	if err != nil {
		t.Fatalf("deactivate all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 ended sessions, got %d", n)
	}
	count, err := reg.ActiveCount(ctx, user.ID)
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no active sessions, got %d", count)
	}
}

func TestCountOthersExcluding(t *testing.T) {
	ctx := context.Background()
	repo := newInMemorySessionRepo()
	reg := newRegistryForTest(repo, SessionPolicy{})
	user := testUser()

	for _, id := range []string{"S1", "S2"} {
		if _, err := reg.CreateSession(ctx, user, id, "ip", "ua", domain.LoginTypeNormal, nil); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	n, err := reg.CountOthersExcluding(ctx, user.ID, "S1")
	if err != nil {
		t.Fatalf("count others: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 other session, got %d", n)
	}
}

func TestSweepExpiredDeactivatesOnlyPastDeadline(t *testing.T) {
	ctx := context.Background()
	repo := newInMemorySessionRepo()
	reg := newRegistryForTest(repo, SessionPolicy{})
	user := testUser()

	if _, err := reg.CreateSession(ctx, user, "live", "ip", "ua", domain.LoginTypeNormal, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.CreateSession(ctx, user, "stale", "ip", "ua", domain.LoginTypeNormal, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.mu.Lock()
	for _, row := range repo.rows {
		if row.SessionID == "stale" {
			row.ExpiresAt = time.Now().Add(-time.Hour)
		}
	}
	repo.mu.Unlock()

	n, err := reg.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}
	stale, err := repo.FindBySessionID(ctx, "stale")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stale.EndReason == nil || *stale.EndReason != domain.EndReasonExpired {
		t.Error("expected expired end reason on the swept row")
	}
	if _, err := reg.GetActive(ctx, "live"); err != nil {
		t.Errorf("live session must survive the sweep: %v", err)
	}
}

func TestSuspiciousByIP(t *testing.T) {
	ctx := context.Background()
	repo := newInMemorySessionRepo()
	reg := newRegistryForTest(repo, SessionPolicy{SuspiciousIPThreshold: 2})
	user := testUser()

	suspicious, err := reg.SuspiciousByIP(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("suspicious check: %v", err)
	}
	if suspicious {
		t.Fatal("empty registry must not be suspicious")
	}

	for _, id := range []string{"S1", "S2"} {
		if _, err := reg.CreateSession(ctx, user, id, "1.2.3.4", "ua", domain.LoginTypeNormal, nil); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	suspicious, err = reg.SuspiciousByIP(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("suspicious check: %v", err)
	}
	if !suspicious {
		t.Fatal("threshold reached, expected suspicious")
	}
}

func TestTouchSessionSavesWithoutRereading(t *testing.T) {
	ctx := context.Background()
	repo := newInMemorySessionRepo()
	reg := newRegistryForTest(repo, SessionPolicy{IdleTimeout: time.Hour})

	if _, err := reg.CreateSession(ctx, testUser(), "S1", "ip", "ua", domain.LoginTypeNormal, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.mu.Lock()
	before := repo.rows[0].ExpiresAt
	repo.findActiveCalls = 0
	repo.mu.Unlock()

	sess, err := reg.GetActive(ctx, "S1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if err := reg.TouchSession(ctx, sess); err != nil {
		t.Fatalf("touch: %v", err)
	}

	repo.mu.Lock()
	reads := repo.findActiveCalls
	after := repo.rows[0].ExpiresAt
	repo.mu.Unlock()
	if reads != 1 {
		t.Fatalf("expected one repository read for resolve-and-touch, got %d", reads)
	}
	if !after.After(before) {
		t.Fatalf("expected expiry to slide forward, before=%v after=%v", before, after)
	}
}
