package dto

import "encoding/json"

// EnqueueTriggerJobRequest represents the request to enqueue a single-recipient trigger send
type EnqueueTriggerJobRequest struct {
	TenantID         uint            `json:"-"`
	TriggerType      string          `json:"trigger_type" validate:"required,max=64"`
	RecipientEmail   string          `json:"recipient_email" validate:"required,email"`
	RecipientPayload json.RawMessage `json:"recipient_payload,omitempty"`
	Subject          string          `json:"subject" validate:"required,max=998"`
	HTMLBody         string          `json:"html_body" validate:"required"`
	TextBody         string          `json:"text_body,omitempty"`
	Priority         int             `json:"priority,omitempty"`
	ScheduleAt       string          `json:"schedule_at,omitempty"` // RFC3339; empty means now
}

// EnqueueFlowStepJobRequest represents the request to enqueue a flow-step send
type EnqueueFlowStepJobRequest struct {
	TenantID   uint   `json:"-"`
	FlowID     uint   `json:"flow_id" validate:"required"`
	StepIndex  int    `json:"step_index" validate:"min=0"`
	Priority   int    `json:"priority,omitempty"`
	ScheduleAt string `json:"schedule_at,omitempty"`
}

// EnqueueJobResponse represents the response after enqueueing a dispatch job
type EnqueueJobResponse struct {
	JobID        uint   `json:"job_id"`
	Status       string `json:"status"`
	ScheduledFor string `json:"scheduled_for"`
}

// RunDispatchRequest represents the request to run one dispatch cycle immediately
type RunDispatchRequest struct {
	MaxJobs int `json:"max_jobs,omitempty" validate:"omitempty,min=1,max=500"`
}

// RunDispatchResponse summarizes one dispatch cycle
type RunDispatchResponse struct {
	JobsProcessed int    `json:"jobs_processed"`
	JobsSucceeded int    `json:"jobs_succeeded"`
	JobsFailed    int    `json:"jobs_failed"`
	EmailsSent    int    `json:"emails_sent"`
	Elapsed       string `json:"elapsed"`
}

// EmailJobDTO represents a dispatch job in API responses
type EmailJobDTO struct {
	ID           uint   `json:"id"`
	JobType      string `json:"job_type"`
	Status       string `json:"status"`
	Priority     int    `json:"priority"`
	AttemptCount int    `json:"attempt_count"`
	ScheduledFor string `json:"scheduled_for"`
	LastError    string `json:"last_error,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// ListJobsRequest represents the request to list a tenant's dispatch jobs
type ListJobsRequest struct {
	TenantID uint    `json:"-"`
	Status   *string `json:"status,omitempty" validate:"omitempty,oneof=pending processing completed failed"`
	JobType  *string `json:"job_type,omitempty" validate:"omitempty,oneof=trigger flow_step"`
	Page     int     `json:"page,omitempty"`
	PageSize int     `json:"page_size,omitempty"`
}

// ListJobsResponse represents a page of dispatch jobs
type ListJobsResponse struct {
	Jobs  []EmailJobDTO `json:"jobs"`
	Total int           `json:"total"`
}
