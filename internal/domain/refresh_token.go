package domain

import "time"

// RefreshToken is the server-side record for one issued refresh token. The
// raw token is never stored; only a one-way hash is kept. A record is usable
// iff it is not revoked, not past ExpiresAt, and the presented token matches
// the hash.
type RefreshToken struct {
	TokenID          string    `gorm:"primaryKey;size:64" json:"token_id"`
	UserID           uint      `gorm:"index;not null" json:"user_id"`
	TenantID         string    `gorm:"size:64;index" json:"tenant_id"`
	BranchID         *uint     `json:"branch_id,omitempty"`
	DeviceID         string    `gorm:"size:128" json:"device_id"`
	IPAddress        string    `gorm:"size:64" json:"ip_address"`
	UserAgent        string    `gorm:"size:512" json:"user_agent"`
	RefreshTokenHash string    `gorm:"size:128;not null" json:"-"`
	ExpiresAt        time.Time `gorm:"index;not null" json:"expires_at"`
	Revoked          bool      `gorm:"index;default:false" json:"revoked"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Usable reports whether the record itself is still live; the hash check is
// separate and lives in the store.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
