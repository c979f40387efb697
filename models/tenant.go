package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a customer workspace. Sender identity (FromAddress and
// FromName) must be configured before any campaign dispatch succeeds.
type Tenant struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID `gorm:"type:uuid;uniqueIndex:uk_tenants_uuid;not null" json:"uuid"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	FromAddress string    `gorm:"size:255" json:"from_address"`
	FromName    string    `gorm:"size:255" json:"from_name"`
	// APIKeyHash is a bcrypt hash of the tenant's machine API key used by the
	// enqueue surface. The plain key is shown once at creation time.
	APIKeyHash string    `gorm:"size:255;not null" json:"-"`
	IsActive   bool      `gorm:"not null;default:true;index:idx_tenants_is_active" json:"is_active"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// HasSenderIdentity reports whether the tenant has configured both parts of
// its sender identity.
func (t *Tenant) HasSenderIdentity() bool {
	return t != nil && t.FromAddress != "" && t.FromName != ""
}

// TenantFilter represents filter criteria for tenant queries
type TenantFilter struct {
	UUID     *uuid.UUID
	Name     *string
	IsActive *bool
}
