package models

import "time"

// SentEmail is the analytics row recorded after each successful broadcast
// send. TempAudienceID is the single-use sink audience that carried the
// broadcast; it is deleted asynchronously after a fixed delay.
type SentEmail struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       uint      `gorm:"not null;index:idx_sent_emails_tenant_id" json:"tenant_id"`
	JobID          uint      `gorm:"not null;index:idx_sent_emails_job_id" json:"job_id"`
	BroadcastID    string    `gorm:"size:128;not null" json:"broadcast_id"`
	TempAudienceID string    `gorm:"size:128" json:"temp_audience_id"`
	RecipientCount int       `gorm:"not null;default:0" json:"recipient_count"`
	TriggerType    string    `gorm:"size:64" json:"trigger_type"`
	FlowID         *uint     `json:"flow_id,omitempty"`
	StepIndex      *int      `json:"step_index,omitempty"`
	SentAt         time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"sent_at"`
}

func (SentEmail) TableName() string { return "sent_emails" }

// SentEmailFilter represents filter criteria for sent email queries
type SentEmailFilter struct {
	TenantID *uint
	JobID    *uint
	FlowID   *uint
}
