package models

import "time"

// TriggerDedupRecord guarantees at most one send per unique
// (tenant, trigger type, recipient) key. The dispatcher checks this record
// before creating a broadcast and writes it after a successful send.
type TriggerDedupRecord struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	TenantID       uint       `gorm:"not null;uniqueIndex:uk_trigger_dedup_key,priority:1" json:"tenant_id"`
	TriggerType    string     `gorm:"size:64;not null;uniqueIndex:uk_trigger_dedup_key,priority:2" json:"trigger_type"`
	RecipientEmail string     `gorm:"size:255;not null;uniqueIndex:uk_trigger_dedup_key,priority:3" json:"recipient_email"`
	Sent           bool       `gorm:"not null;default:false" json:"sent"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CreatedAt      time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (TriggerDedupRecord) TableName() string { return "trigger_dedup_records" }
