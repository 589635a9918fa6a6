package domain

import "time"

// User is one per-tenant identity row. The same human email may own several
// rows, one per tenant; callers that need "everyone with this email" must use
// IdentityDirectory.FindAllByEmail rather than FindByEmail.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"size:255;index;not null" json:"email"`
	Name         string     `gorm:"size:255" json:"name"`
	PasswordHash string     `gorm:"size:128" json:"-"`
	Role         string     `gorm:"size:64" json:"role"`
	TenantID     string     `gorm:"size:64;index" json:"tenant_id"`
	BranchID     *uint      `gorm:"index" json:"branch_id,omitempty"`
	Branch       *Branch    `gorm:"foreignKey:BranchID" json:"-"`
	// No gorm default on the flags: a default tag makes gorm drop an
	// explicit zero value on insert, turning IsActive=false into true.
	IsActive     bool       `json:"is_active"`
	IsDeleted    bool       `gorm:"index" json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Branch is an office/location inside a tenant. A user's branch implies
// tenant reachability even when the user row's own TenantID is stale.
type Branch struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	TenantID string `gorm:"size:64;index;not null" json:"tenant_id"`
	Name     string `gorm:"size:255" json:"name"`
}
