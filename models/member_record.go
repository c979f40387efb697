package models

import (
	"strings"
	"time"
)

// MemberRecord is a normalized external member owned by one audience.
// Records are upserted keyed by (audience_id, email), never duplicated; a
// re-sync overwrites names with the latest values from the source.
type MemberRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AudienceID     uint      `gorm:"not null;uniqueIndex:uk_member_records_audience_email,priority:1" json:"audience_id"`
	Email          string    `gorm:"size:255;not null;uniqueIndex:uk_member_records_audience_email,priority:2" json:"email"`
	FirstName      string    `gorm:"size:255" json:"first_name"`
	LastName       string    `gorm:"size:255" json:"last_name"`
	FullName       string    `gorm:"size:512" json:"full_name"`
	SourceMemberID string    `gorm:"size:128;index:idx_member_records_source_member_id" json:"source_member_id"`
	CreatedAt      time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (MemberRecord) TableName() string { return "member_records" }

// SplitFullName derives first/last name parts when the source only exposes a
// display name. Everything after the first word becomes the last name.
func SplitFullName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.Fields(full)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// MemberRecordFilter represents filter criteria for member record queries
type MemberRecordFilter struct {
	AudienceID *uint
	Email      *string
}
