package models

import (
	"encoding/json"
	"time"
)

// Email job types
const (
	JobTypeTrigger  = "trigger"
	JobTypeFlowStep = "flow_step"
)

// Email job statuses
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// EmailJob is one unit of dispatch work: a trigger send for a single
// recipient or a flow-step send for every enrollee parked at that step.
//
// A job is claimed by at most one worker at a time; exclusivity is enforced
// by the claim query, not by callers. AttemptCount only increases, and a job
// past the configured max attempts is terminally failed and never reclaimed.
type EmailJob struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	JobType          string          `gorm:"size:20;not null;index:idx_email_jobs_job_type" json:"job_type"`
	TenantID         uint            `gorm:"not null;index:idx_email_jobs_tenant_id" json:"tenant_id"`
	TriggerType      string          `gorm:"size:64" json:"trigger_type"`
	FlowID           *uint           `json:"flow_id,omitempty"`
	StepIndex        *int            `json:"step_index,omitempty"`
	RecipientEmail   string          `gorm:"size:255" json:"recipient_email"`
	RecipientPayload json.RawMessage `gorm:"type:jsonb" json:"recipient_payload,omitempty"`
	Subject          string          `gorm:"size:998;not null" json:"subject"`
	HTMLBody         string          `gorm:"type:text" json:"html_body"`
	TextBody         string          `gorm:"type:text" json:"text_body"`
	FromAddress      string          `gorm:"size:255" json:"from_address"`
	Priority         int             `gorm:"not null;default:0;index:idx_email_jobs_claim,priority:1" json:"priority"`
	Status           string          `gorm:"size:20;not null;default:pending;index:idx_email_jobs_claim,priority:2" json:"status"`
	ScheduledFor     time.Time       `gorm:"not null;index:idx_email_jobs_claim,priority:3" json:"scheduled_for"`
	AttemptCount     int             `gorm:"not null;default:0" json:"attempt_count"`
	WorkerID         *string         `gorm:"size:64" json:"worker_id,omitempty"`
	LastError        *string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt        time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (EmailJob) TableName() string { return "email_jobs" }

// EmailJobFilter represents filter criteria for email job queries
type EmailJobFilter struct {
	TenantID        *uint
	JobType         *string
	Status          *string
	TriggerType     *string
	ScheduledBefore *time.Time
	ScheduledAfter  *time.Time
}
