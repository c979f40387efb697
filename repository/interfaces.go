// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postlane/postlane/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
}

// EmailJobRepository is the durable job queue. ClaimNext and ScheduleRetry
// are the only operations that must be transactional at the datastore level.
type EmailJobRepository interface {
	Repository[models.EmailJob, models.EmailJobFilter]
	// ClaimNext atomically selects one pending job due now, in
	// (priority DESC, scheduled_for ASC) order, marks it processing owned by
	// workerID and returns it. Returns (nil, nil) when the queue is drained.
	// Two concurrent callers never receive the same job.
	ClaimNext(ctx context.Context, workerID string) (*models.EmailJob, error)
	// Complete marks the job completed, or records the failure reason for a
	// subsequent retry decision.
	Complete(ctx context.Context, jobID uint, success bool, errorMessage string) error
	// ScheduleRetry increments attempt_count; below maxAttempts it re-queues
	// the job with a backoff-delayed scheduled_for and returns true,
	// otherwise it terminally fails the job and returns false.
	ScheduleRetry(ctx context.Context, jobID uint, maxAttempts int) (bool, error)
	// Fail terminally fails the job, bypassing retries. Used for validation
	// errors that can never succeed.
	Fail(ctx context.Context, jobID uint, errorMessage string) error
	ByFilter(ctx context.Context, filter models.EmailJobFilter, orderBy string, limit, offset int) ([]*models.EmailJob, error)
}

// TriggerDedupRepository enforces at-most-one send per
// (tenant, trigger type, recipient) key.
type TriggerDedupRepository interface {
	ByKey(ctx context.Context, tenantID uint, triggerType, recipientEmail string) (*models.TriggerDedupRecord, error)
	MarkSent(ctx context.Context, tenantID uint, triggerType, recipientEmail string, sentAt time.Time) error
}

// SyncJobRepository persists bulk-sync progress for polling callers.
type SyncJobRepository interface {
	Repository[models.SyncJob, models.SyncJobFilter]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.SyncJob, error)
	Update(ctx context.Context, job *models.SyncJob) error
	ByFilter(ctx context.Context, filter models.SyncJobFilter) ([]*models.SyncJob, error)
}

// MemberRecordRepository owns normalized member rows per audience.
type MemberRecordRepository interface {
	Repository[models.MemberRecord, models.MemberRecordFilter]
	// Upsert inserts or overwrites the record keyed by (audience_id, email).
	Upsert(ctx context.Context, record *models.MemberRecord) error
	ListByAudience(ctx context.Context, audienceID uint, limit, offset int) ([]*models.MemberRecord, error)
	CountByAudience(ctx context.Context, audienceID uint) (int64, error)
}

// AudienceRepository manages local audience metadata.
type AudienceRepository interface {
	Repository[models.Audience, models.AudienceFilter]
	Update(ctx context.Context, audience *models.Audience) error
	ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.Audience, error)
}

// FlowRepository covers flows, steps and enrollments.
type FlowRepository interface {
	FlowByID(ctx context.Context, flowID uint) (*models.Flow, error)
	StepByIndex(ctx context.Context, flowID uint, stepIndex int) (*models.FlowStep, error)
	StepCount(ctx context.Context, flowID uint) (int64, error)
	// EnrollmentsAtStep returns the non-completed enrollees currently parked
	// at the given step.
	EnrollmentsAtStep(ctx context.Context, flowID uint, stepIndex int) ([]*models.FlowEnrollment, error)
	// AdvanceEnrollment moves the enrollee past stepIndex; when the step was
	// terminal it marks the enrollment completed instead.
	AdvanceEnrollment(ctx context.Context, enrollmentID uint, terminal bool, now time.Time) error
	IncrementFlowCounters(ctx context.Context, flowID uint, triggered, completed int) error
	SaveEnrollment(ctx context.Context, enrollment *models.FlowEnrollment) error
	SaveFlow(ctx context.Context, flow *models.Flow) error
	SaveStep(ctx context.Context, step *models.FlowStep) error
}

// TenantRepository resolves tenant configuration (sender identity).
type TenantRepository interface {
	Repository[models.Tenant, models.TenantFilter]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// SentEmailRepository records analytics rows for successful sends.
type SentEmailRepository interface {
	Repository[models.SentEmail, models.SentEmailFilter]
	ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.SentEmail, error)
}
