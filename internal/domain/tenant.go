package domain

import "time"

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
	TenantStatusPending   TenantStatus = "PENDING"
)

// Tenant is an isolated business-account boundary. Soft-deleted tenants are
// invisible to tenant resolution.
type Tenant struct {
	ID           uint         `gorm:"primaryKey" json:"-"`
	TenantID     string       `gorm:"size:64;uniqueIndex;not null" json:"tenant_id"`
	Name         string       `gorm:"size:255" json:"name"`
	BusinessType string       `gorm:"size:64" json:"business_type"`
	Status       TenantStatus `gorm:"size:32" json:"status"`
	IsDeleted    bool         `gorm:"index;default:false" json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
