package domain

import "time"

// TenantRole is a per-tenant role definition, distinct from the legacy
// single Role string on User.
type TenantRole struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	TenantRoleID string    `gorm:"size:64;uniqueIndex;not null" json:"tenant_role_id"`
	TenantID     string    `gorm:"size:64;index" json:"tenant_id"`
	Name         string    `gorm:"size:128" json:"name"`
	Label        string    `gorm:"size:128" json:"label"`
	IsDeleted    bool      `gorm:"index;default:false" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserRoleAssignment binds a user to a TenantRole inside one tenant,
// optionally scoped to a branch and bounded by an effective window.
type UserRoleAssignment struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"index;not null" json:"user_id"`
	TenantID      string     `gorm:"size:64;index;not null" json:"tenant_id"`
	TenantRoleID  string     `gorm:"size:64;not null" json:"tenant_role_id"`
	BranchID      *uint      `json:"branch_id,omitempty"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	IsDeleted     bool       `gorm:"index;default:false" json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ActiveOn reports whether the assignment is in effect on the given date.
// A nil EffectiveFrom/EffectiveTo leaves that side of the window open.
func (a *UserRoleAssignment) ActiveOn(day time.Time) bool {
	if a.IsDeleted {
		return false
	}
	if a.EffectiveFrom != nil && a.EffectiveFrom.After(day) {
		return false
	}
	if a.EffectiveTo != nil && a.EffectiveTo.Before(day) {
		return false
	}
	return true
}
