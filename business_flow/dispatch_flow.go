package businessflow

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/postlane/postlane/app/dto"
	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/repository"
	"github.com/postlane/postlane/utils"
	"gorm.io/gorm"
)

// QueueRunSummary mirrors one bounded worker run for API callers.
type QueueRunSummary struct {
	JobsProcessed int
	JobsSucceeded int
	JobsFailed    int
	EmailsSent    int
	Elapsed       time.Duration
}

// QueueRunner executes one bounded queue run. Implemented by the worker loop
// and adapted in app/adapters.
type QueueRunner interface {
	RunQueueOnce(ctx context.Context, maxJobs int) (QueueRunSummary, error)
}

// DispatchFlow provides use cases for enqueueing dispatch jobs and running
// the queue on demand.
type DispatchFlow interface {
	EnqueueTriggerJob(ctx context.Context, req *dto.EnqueueTriggerJobRequest, metadata *ClientMetadata) (*dto.EnqueueJobResponse, error)
	EnqueueFlowStepJob(ctx context.Context, req *dto.EnqueueFlowStepJobRequest, metadata *ClientMetadata) (*dto.EnqueueJobResponse, error)
	RunDispatch(ctx context.Context, req *dto.RunDispatchRequest, metadata *ClientMetadata) (*dto.RunDispatchResponse, error)
	ListJobs(ctx context.Context, req *dto.ListJobsRequest) (*dto.ListJobsResponse, error)
}

type DispatchFlowImpl struct {
	jobRepo    repository.EmailJobRepository
	tenantRepo repository.TenantRepository
	flowRepo   repository.FlowRepository
	runner     QueueRunner
	db         *gorm.DB
	logger     *log.Logger
}

func NewDispatchFlow(
	jobRepo repository.EmailJobRepository,
	tenantRepo repository.TenantRepository,
	flowRepo repository.FlowRepository,
	runner QueueRunner,
	db *gorm.DB,
	logger *log.Logger,
) DispatchFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &DispatchFlowImpl{
		jobRepo:    jobRepo,
		tenantRepo: tenantRepo,
		flowRepo:   flowRepo,
		runner:     runner,
		db:         db,
		logger:     logger,
	}
}

// EnqueueTriggerJob creates a pending trigger job. The send itself happens
// later inside a worker run; duplicates are absorbed there by the dedup
// record, so enqueueing the same trigger twice is harmless.
func (f *DispatchFlowImpl) EnqueueTriggerJob(ctx context.Context, req *dto.EnqueueTriggerJobRequest, metadata *ClientMetadata) (*dto.EnqueueJobResponse, error) {
	if err := f.checkTenant(ctx, req.TenantID); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(strings.ToLower(req.RecipientEmail))
	if email == "" || !strings.Contains(email, "@") {
		return nil, NewBusinessError("INVALID_RECIPIENT", "Recipient email is invalid", ErrInvalidRecipient)
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, NewBusinessError("EMPTY_SUBJECT", "Email subject is required", ErrEmptySubject)
	}
	if strings.TrimSpace(req.HTMLBody) == "" {
		return nil, NewBusinessError("EMPTY_BODY", "Email body is required", ErrEmptyBody)
	}

	scheduledFor, err := parseScheduleAt(req.ScheduleAt)
	if err != nil {
		return nil, err
	}

	job := &models.EmailJob{
		JobType:          models.JobTypeTrigger,
		TenantID:         req.TenantID,
		TriggerType:      req.TriggerType,
		RecipientEmail:   email,
		RecipientPayload: req.RecipientPayload,
		Subject:          req.Subject,
		HTMLBody:         req.HTMLBody,
		TextBody:         req.TextBody,
		Priority:         req.Priority,
		Status:           models.JobStatusPending,
		ScheduledFor:     scheduledFor,
	}
	if err := f.jobRepo.Save(ctx, job); err != nil {
		return nil, NewBusinessError("ENQUEUE_FAILED", "Failed to enqueue trigger job", err)
	}

	f.logger.Printf("dispatch: enqueued trigger job id=%d tenant=%d type=%s", job.ID, job.TenantID, job.TriggerType)
	return &dto.EnqueueJobResponse{
		JobID:        job.ID,
		Status:       job.Status,
		ScheduledFor: job.ScheduledFor.Format(time.RFC3339),
	}, nil
}

// EnqueueFlowStepJob creates a pending flow-step job after validating that
// the flow and step exist and belong to the tenant.
func (f *DispatchFlowImpl) EnqueueFlowStepJob(ctx context.Context, req *dto.EnqueueFlowStepJobRequest, metadata *ClientMetadata) (*dto.EnqueueJobResponse, error) {
	if err := f.checkTenant(ctx, req.TenantID); err != nil {
		return nil, err
	}

	flow, err := f.flowRepo.FlowByID(ctx, req.FlowID)
	if err != nil {
		return nil, NewBusinessError("FLOW_LOOKUP_FAILED", "Failed to look up flow", err)
	}
	if flow == nil || flow.TenantID != req.TenantID {
		return nil, NewBusinessError("FLOW_NOT_FOUND", "Flow not found", ErrFlowNotFound)
	}
	step, err := f.flowRepo.StepByIndex(ctx, req.FlowID, req.StepIndex)
	if err != nil {
		return nil, NewBusinessError("STEP_LOOKUP_FAILED", "Failed to look up flow step", err)
	}
	if step == nil {
		return nil, NewBusinessError("FLOW_STEP_NOT_FOUND", "Flow step not found", ErrFlowStepNotFound)
	}

	scheduledFor, err := parseScheduleAt(req.ScheduleAt)
	if err != nil {
		return nil, err
	}

	stepIndex := req.StepIndex
	job := &models.EmailJob{
		JobType:      models.JobTypeFlowStep,
		TenantID:     req.TenantID,
		FlowID:       &req.FlowID,
		StepIndex:    &stepIndex,
		Subject:      step.Subject,
		HTMLBody:     step.HTMLBody,
		TextBody:     step.TextBody,
		Priority:     req.Priority,
		Status:       models.JobStatusPending,
		ScheduledFor: scheduledFor,
	}
	if err := f.jobRepo.Save(ctx, job); err != nil {
		return nil, NewBusinessError("ENQUEUE_FAILED", "Failed to enqueue flow step job", err)
	}

	f.logger.Printf("dispatch: enqueued flow step job id=%d tenant=%d flow=%d step=%d", job.ID, job.TenantID, req.FlowID, req.StepIndex)
	return &dto.EnqueueJobResponse{
		JobID:        job.ID,
		Status:       job.Status,
		ScheduledFor: job.ScheduledFor.Format(time.RFC3339),
	}, nil
}

// RunDispatch performs one bounded queue run immediately. Safe to invoke
// concurrently with the periodic worker; claim exclusivity prevents double
// processing.
func (f *DispatchFlowImpl) RunDispatch(ctx context.Context, req *dto.RunDispatchRequest, metadata *ClientMetadata) (*dto.RunDispatchResponse, error) {
	summary, err := f.runner.RunQueueOnce(ctx, req.MaxJobs)
	if err != nil {
		return nil, NewBusinessError("DISPATCH_RUN_FAILED", "Dispatch run failed", err)
	}
	return &dto.RunDispatchResponse{
		JobsProcessed: summary.JobsProcessed,
		JobsSucceeded: summary.JobsSucceeded,
		JobsFailed:    summary.JobsFailed,
		EmailsSent:    summary.EmailsSent,
		Elapsed:       summary.Elapsed.String(),
	}, nil
}

// ListJobs returns a page of the tenant's dispatch jobs, newest first.
func (f *DispatchFlowImpl) ListJobs(ctx context.Context, req *dto.ListJobsRequest) (*dto.ListJobsResponse, error) {
	page := req.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return nil, NewBusinessError("INVALID_PAGE", "Page must be at least 1", ErrInvalidPage)
	}
	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = 20
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, NewBusinessError("INVALID_PAGE_SIZE", "Page size must be between 1 and 100", ErrInvalidPageSize)
	}

	filter := models.EmailJobFilter{
		TenantID: &req.TenantID,
		JobType:  req.JobType,
		Status:   req.Status,
	}
	jobs, err := f.jobRepo.ByFilter(ctx, filter, "created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("LIST_JOBS_FAILED", "Failed to list jobs", err)
	}

	out := &dto.ListJobsResponse{Jobs: make([]dto.EmailJobDTO, 0, len(jobs)), Total: len(jobs)}
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, ToEmailJobDTO(*j))
	}
	return out, nil
}

func (f *DispatchFlowImpl) checkTenant(ctx context.Context, tenantID uint) error {
	tenant, err := f.tenantRepo.ByID(ctx, tenantID)
	if err != nil {
		return NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to look up tenant", err)
	}
	if tenant == nil {
		return NewBusinessError("TENANT_NOT_FOUND", "Tenant not found", ErrTenantNotFound)
	}
	if !tenant.IsActive {
		return NewBusinessError("TENANT_INACTIVE", "Tenant is inactive", ErrTenantInactive)
	}
	return nil
}

// parseScheduleAt resolves the optional RFC3339 schedule time; empty means
// now. Times far in the past are rejected to catch unit mistakes, while a
// small skew is tolerated.
func parseScheduleAt(raw string) (time.Time, error) {
	now := utils.UTCNow()
	if raw == "" {
		return now, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, NewBusinessError("INVALID_SCHEDULE_AT", "schedule_at must be RFC3339", err)
	}
	t = t.UTC()
	if t.Before(now.Add(-24 * time.Hour)) {
		return time.Time{}, NewBusinessError("SCHEDULE_IN_PAST", "schedule_at is too far in the past", ErrScheduleInPast)
	}
	return t, nil
}
