package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
)

func newDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Session{}, &domain.RefreshToken{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestForceTerminateUserEndsSessionsAndRevokesTokens(t *testing.T) {
	db := newDBForTest(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 2; i++ {
		sess := &domain.Session{
			SessionID:      fmt.Sprintf("sess-%d", i),
			UserID:         1,
			CreatedAt:      now,
			LastActivityAt: now,
			ExpiresAt:      now.Add(time.Hour),
			ClientIP:       "10.0.0.1",
			LoginType:      domain.LoginTypeNormal,
			IsActive:       true,
		}
		if err := db.WithContext(ctx).Create(sess).Error; err != nil {
			t.Fatalf("seed session: %v", err)
		}
	}
	tok := &domain.RefreshToken{
		TokenID:          "tok-1",
		UserID:           1,
		RefreshTokenHash: "h",
		ExpiresAt:        now.Add(time.Hour),
	}
	if err := db.WithContext(ctx).Create(tok).Error; err != nil {
		t.Fatalf("seed token: %v", err)
	}
	other := &domain.Session{
		SessionID:      "sess-other",
		UserID:         2,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(time.Hour),
		ClientIP:       "10.0.0.2",
		LoginType:      domain.LoginTypeNormal,
		IsActive:       true,
	}
	if err := db.WithContext(ctx).Create(other).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var out bytes.Buffer
	if err := forceTerminateUser(ctx, db, 1, domain.EndReasonAdminTerminated, logger, &out); err != nil {
		t.Fatalf("forceTerminateUser: %v", err)
	}
	if got, want := out.String(), "2 sessions ended, 1 refresh tokens revoked for user 1\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}

	var sessions []domain.Session
	if err := db.WithContext(ctx).Where("user_id = ?", 1).Find(&sessions).Error; err != nil {
		t.Fatalf("load sessions: %v", err)
	}
	for _, s := range sessions {
		if s.IsActive {
			t.Fatalf("session %s still active", s.SessionID)
		}
		if s.EndReason == nil || *s.EndReason != domain.EndReasonAdminTerminated {
			t.Fatalf("session %s end reason = %v", s.SessionID, s.EndReason)
		}
	}

	var got domain.RefreshToken
	if err := db.WithContext(ctx).First(&got, "token_id = ?", "tok-1").Error; err != nil {
		t.Fatalf("load token: %v", err)
	}
	if !got.Revoked {
		t.Fatal("refresh token not revoked")
	}

	var untouched domain.Session
	if err := db.WithContext(ctx).First(&untouched, "session_id = ?", "sess-other").Error; err != nil {
		t.Fatalf("load other session: %v", err)
	}
	if !untouched.IsActive {
		t.Fatal("other user's session was deactivated")
	}
}

func TestSessionsRevokeDefaultsToAdminTerminatedReason(t *testing.T) {
	cmd := newSessionsRevokeCommand(&options{})
	got, err := cmd.Flags().GetString("reason")
	if err != nil {
		t.Fatalf("reason flag: %v", err)
	}
	if got != domain.EndReasonAdminTerminated {
		t.Fatalf("default reason = %q, want %q", got, domain.EndReasonAdminTerminated)
	}
}
