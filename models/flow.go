package models

import "time"

// Flow is a multi-step automated email sequence. TriggeredCount and
// CompletedCount are flow-level counters incremented by the dispatcher.
type Flow struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       uint      `gorm:"not null;index:idx_flows_tenant_id" json:"tenant_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`
	TriggeredCount int       `gorm:"not null;default:0" json:"triggered_count"`
	CompletedCount int       `gorm:"not null;default:0" json:"completed_count"`
	CreatedAt      time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (Flow) TableName() string { return "flows" }

// FlowStep is one email in a flow with the delay applied before the next
// step fires. StepIndex is zero-based and dense within a flow.
type FlowStep struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	FlowID     uint          `gorm:"not null;uniqueIndex:uk_flow_steps_flow_index,priority:1" json:"flow_id"`
	StepIndex  int           `gorm:"not null;uniqueIndex:uk_flow_steps_flow_index,priority:2" json:"step_index"`
	Subject    string        `gorm:"size:998;not null" json:"subject"`
	HTMLBody   string        `gorm:"type:text" json:"html_body"`
	TextBody   string        `gorm:"type:text" json:"text_body"`
	DelayAfter time.Duration `gorm:"not null;default:0" json:"delay_after"`
	CreatedAt  time.Time     `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (FlowStep) TableName() string { return "flow_steps" }

// FlowEnrollment parks one recipient at a step of a flow. The dispatcher
// advances CurrentStep after a successful flow-step send and marks the
// enrollment completed when the step was terminal.
type FlowEnrollment struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	FlowID      uint       `gorm:"not null;uniqueIndex:uk_flow_enrollments_flow_email,priority:1;index:idx_flow_enrollments_flow_step" json:"flow_id"`
	TenantID    uint       `gorm:"not null" json:"tenant_id"`
	Email       string     `gorm:"size:255;not null;uniqueIndex:uk_flow_enrollments_flow_email,priority:2" json:"email"`
	CurrentStep int        `gorm:"not null;default:0;index:idx_flow_enrollments_flow_step" json:"current_step"`
	Completed   bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	EnrolledAt  time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"enrolled_at"`
	UpdatedAt   time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (FlowEnrollment) TableName() string { return "flow_enrollments" }
