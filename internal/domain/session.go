package domain

import "time"

const (
	LoginTypeNormal = "NORMAL"
	LoginTypeSocial = "SOCIAL"
)

// Session end reasons recorded on deactivation.
const (
	EndReasonLogout          = "LOGOUT"
	EndReasonDuplicateLogin  = "DUPLICATE_LOGIN"
	EndReasonExpired         = "EXPIRED"
	EndReasonAdminTerminated = "ADMIN_TERMINATED"
)

// Session is one tracked login. SessionID is caller-supplied and assumed
// globally unique; the registry keeps at most one current row per id by
// deleting prior rows before insert, not via a uniqueness constraint.
type Session struct {
	SessionID      string     `gorm:"primaryKey;size:128" json:"session_id"`
	UserID         uint       `gorm:"index;not null" json:"user_id"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `gorm:"index;not null" json:"expires_at"`
	ClientIP       string     `gorm:"size:64;index" json:"client_ip"`
	UserAgent      string     `gorm:"size:512" json:"user_agent"`
	LoginType      string     `gorm:"size:32" json:"login_type"`
	SocialProvider *string    `gorm:"size:64" json:"social_provider,omitempty"`
	IsActive       bool       `gorm:"index" json:"is_active"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EndReason      *string    `gorm:"size:64" json:"end_reason,omitempty"`
}

// Current reports whether the session authorizes requests right now.
func (s *Session) Current(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}
