package models

import "time"

// Audience is a locally tracked member list. SourceAudienceID points at the
// membership platform list it was imported from; SinkAudienceID is the
// matching audience in the email provider. MemberCount is a cached count
// refreshed when a bulk sync completes, and Ready flips to true at the same
// moment.
type Audience struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	TenantID         uint      `gorm:"not null;index:idx_audiences_tenant_id" json:"tenant_id"`
	Name             string    `gorm:"size:255;not null" json:"name"`
	SourceAudienceID string    `gorm:"size:128;index:idx_audiences_source_id" json:"source_audience_id"`
	SinkAudienceID   string    `gorm:"size:128" json:"sink_audience_id"`
	MemberCount      int       `gorm:"not null;default:0" json:"member_count"`
	Ready            bool      `gorm:"not null;default:false" json:"ready"`
	CreatedAt        time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (Audience) TableName() string { return "audiences" }

// AudienceFilter represents filter criteria for audience queries
type AudienceFilter struct {
	TenantID         *uint
	SourceAudienceID *string
	Ready            *bool
}
