// Package scheduler
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/postlane/postlane/app/services"
	businessflow "github.com/postlane/postlane/business_flow"
	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/repository"
	"github.com/postlane/postlane/utils"
)

// DispatchResult is the outcome of running one claimed job.
type DispatchResult struct {
	Success   bool
	SentCount int
	Err       error
}

// CampaignDispatcher consumes one claimed job at a time: it builds a
// temporary recipient audience in the sink, adds recipients, creates and
// sends a broadcast, records analytics, and schedules cleanup of the
// temporary audience. Every sink call is preceded by a rate-limiter turn.
type CampaignDispatcher struct {
	tenantRepo repository.TenantRepository
	dedupRepo  repository.TriggerDedupRepository
	flowRepo   repository.FlowRepository
	sentRepo   repository.SentEmailRepository
	sink       services.EmailSinkClient
	limiter    services.RateLimiter
	logger     *log.Logger

	// cleanupDelay is how long a temporary audience outlives its broadcast
	// before the best-effort delete fires.
	cleanupDelay time.Duration
}

func NewCampaignDispatcher(
	tenantRepo repository.TenantRepository,
	dedupRepo repository.TriggerDedupRepository,
	flowRepo repository.FlowRepository,
	sentRepo repository.SentEmailRepository,
	sink services.EmailSinkClient,
	limiter services.RateLimiter,
	cleanupDelay time.Duration,
	logger *log.Logger,
) *CampaignDispatcher {
	if cleanupDelay <= 0 {
		cleanupDelay = 5 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CampaignDispatcher{
		tenantRepo:   tenantRepo,
		dedupRepo:    dedupRepo,
		flowRepo:     flowRepo,
		sentRepo:     sentRepo,
		sink:         sink,
		limiter:      limiter,
		cleanupDelay: cleanupDelay,
		logger:       logger,
	}
}

// Run executes one claimed job. Any sink or datastore error aborts the
// remaining steps and is returned for the caller's retry decision; the
// dispatcher itself never re-queues.
func (d *CampaignDispatcher) Run(ctx context.Context, job *models.EmailJob) DispatchResult {
	switch job.JobType {
	case models.JobTypeTrigger:
		return d.runTrigger(ctx, job)
	case models.JobTypeFlowStep:
		return d.runFlowStep(ctx, job)
	default:
		return DispatchResult{Err: businessflow.NewBusinessErrorf("UNKNOWN_JOB_TYPE", "job %d has unknown type %q", businessflow.ErrUnknownJobType, job.ID, job.JobType)}
	}
}

func (d *CampaignDispatcher) runTrigger(ctx context.Context, job *models.EmailJob) DispatchResult {
	email := strings.TrimSpace(strings.ToLower(job.RecipientEmail))
	if email == "" || !strings.Contains(email, "@") {
		return DispatchResult{Err: businessflow.NewBusinessErrorf("INVALID_RECIPIENT", "job %d recipient %q is invalid", businessflow.ErrInvalidRecipient, job.ID, job.RecipientEmail)}
	}

	// At-most-one send per (tenant, trigger_type, recipient). The mark is
	// written only after a confirmed send, so two distinct duplicate jobs
	// claimed by overlapping invocations can both pass this check and send
	// twice. Closing that window needs a reservation insert on the unique
	// key before the send; see the dedup ordering note in DESIGN.md.
	dedup, err := d.dedupRepo.ByKey(ctx, job.TenantID, job.TriggerType, email)
	if err != nil {
		return DispatchResult{Err: fmt.Errorf("dedup lookup: %w", err)}
	}
	if dedup != nil && dedup.Sent {
		d.logger.Printf("dispatcher: job id=%d already sent to %s, skipping", job.ID, email)
		return DispatchResult{Success: true, SentCount: 0}
	}

	tenant, from, err := d.resolveSender(ctx, job)
	if err != nil {
		return DispatchResult{Err: err}
	}

	audienceName := fmt.Sprintf("trigger-%s-%s", job.TriggerType, uuid.NewString())
	audienceID, err := d.createTempAudience(ctx, audienceName)
	if err != nil {
		return DispatchResult{Err: err}
	}

	if err := d.limiter.AwaitTurn(ctx); err != nil {
		return DispatchResult{Err: err}
	}
	first, last := recipientNames(job)
	if _, err := d.sink.CreateContact(ctx, audienceID, email, first, last); err != nil {
		return DispatchResult{Err: fmt.Errorf("add recipient: %w", err)}
	}

	broadcastID, err := d.createAndSendBroadcast(ctx, audienceID, from, job, audienceName)
	if err != nil {
		return DispatchResult{Err: err}
	}

	now := utils.UTCNow()
	if err := d.dedupRepo.MarkSent(ctx, job.TenantID, job.TriggerType, email, now); err != nil {
		// The broadcast is out; losing the dedup row risks a duplicate on a
		// future enqueue, so surface the error for a retry of the write path.
		return DispatchResult{Err: fmt.Errorf("mark dedup sent: %w", err)}
	}

	d.recordSent(ctx, tenant.ID, job, broadcastID, audienceID, 1)
	d.scheduleCleanup(audienceID)

	return DispatchResult{Success: true, SentCount: 1}
}

func (d *CampaignDispatcher) runFlowStep(ctx context.Context, job *models.EmailJob) DispatchResult {
	if job.FlowID == nil || job.StepIndex == nil {
		return DispatchResult{Err: businessflow.NewBusinessErrorf("INVALID_JOB_PAYLOAD", "job %d is missing flow_id or step_index", businessflow.ErrJobPayloadInvalid, job.ID)}
	}
	flowID, stepIndex := *job.FlowID, *job.StepIndex

	flow, err := d.flowRepo.FlowByID(ctx, flowID)
	if err != nil {
		return DispatchResult{Err: fmt.Errorf("flow lookup: %w", err)}
	}
	if flow == nil {
		return DispatchResult{Err: businessflow.ErrFlowNotFound}
	}
	if !flow.IsActive {
		return DispatchResult{Err: businessflow.ErrFlowInactive}
	}

	step, err := d.flowRepo.StepByIndex(ctx, flowID, stepIndex)
	if err != nil {
		return DispatchResult{Err: fmt.Errorf("step lookup: %w", err)}
	}
	if step == nil {
		return DispatchResult{Err: businessflow.ErrFlowStepNotFound}
	}

	enrollees, err := d.flowRepo.EnrollmentsAtStep(ctx, flowID, stepIndex)
	if err != nil {
		return DispatchResult{Err: fmt.Errorf("enrollments lookup: %w", err)}
	}
	if len(enrollees) == 0 {
		d.logger.Printf("dispatcher: job id=%d flow=%d step=%d has no enrollees, skipping", job.ID, flowID, stepIndex)
		return DispatchResult{Success: true, SentCount: 0}
	}

	tenant, from, err := d.resolveSender(ctx, job)
	if err != nil {
		return DispatchResult{Err: err}
	}

	audienceName := fmt.Sprintf("flow-%d-step-%d-%s", flowID, stepIndex, uuid.NewString())
	audienceID, err := d.createTempAudience(ctx, audienceName)
	if err != nil {
		return DispatchResult{Err: err}
	}

	for _, e := range enrollees {
		if err := d.limiter.AwaitTurn(ctx); err != nil {
			return DispatchResult{Err: err}
		}
		if _, err := d.sink.CreateContact(ctx, audienceID, e.Email, "", ""); err != nil {
			return DispatchResult{Err: fmt.Errorf("add enrollee %s: %w", e.Email, err)}
		}
	}

	// Step content addresses the whole temp audience at once.
	stepJob := *job
	stepJob.Subject = step.Subject
	stepJob.HTMLBody = step.HTMLBody
	stepJob.TextBody = step.TextBody
	broadcastID, err := d.createAndSendBroadcast(ctx, audienceID, from, &stepJob, audienceName)
	if err != nil {
		return DispatchResult{Err: err}
	}

	stepCount, err := d.flowRepo.StepCount(ctx, flowID)
	if err != nil {
		return DispatchResult{Err: fmt.Errorf("step count: %w", err)}
	}
	terminal := int64(stepIndex) >= stepCount-1

	now := utils.UTCNow()
	completed := 0
	for _, e := range enrollees {
		if err := d.flowRepo.AdvanceEnrollment(ctx, e.ID, terminal, now); err != nil {
			return DispatchResult{Err: fmt.Errorf("advance enrollment %d: %w", e.ID, err)}
		}
		if terminal {
			completed++
		}
	}
	if err := d.flowRepo.IncrementFlowCounters(ctx, flowID, len(enrollees), completed); err != nil {
		return DispatchResult{Err: fmt.Errorf("increment flow counters: %w", err)}
	}

	d.recordSent(ctx, tenant.ID, job, broadcastID, audienceID, len(enrollees))
	d.scheduleCleanup(audienceID)

	return DispatchResult{Success: true, SentCount: len(enrollees)}
}

// resolveSender loads the tenant and builds the "Name <address>" from line.
// A missing sender identity is a configuration error: the job keeps being
// retried by the generic path and surfaces the same message until the tenant
// fixes its settings.
func (d *CampaignDispatcher) resolveSender(ctx context.Context, job *models.EmailJob) (*models.Tenant, string, error) {
	tenant, err := d.tenantRepo.ByID(ctx, job.TenantID)
	if err != nil {
		return nil, "", fmt.Errorf("tenant lookup: %w", err)
	}
	if tenant == nil {
		return nil, "", businessflow.ErrTenantNotFound
	}
	if !tenant.IsActive {
		return nil, "", businessflow.ErrTenantInactive
	}
	if !tenant.HasSenderIdentity() {
		return nil, "", businessflow.NewBusinessErrorf("SENDER_IDENTITY_MISSING", "tenant %d has no sender identity configured", businessflow.ErrSenderIdentityMissing, tenant.ID)
	}
	from := job.FromAddress
	if from == "" {
		from = fmt.Sprintf("%s <%s>", tenant.FromName, tenant.FromAddress)
	}
	return tenant, from, nil
}

func (d *CampaignDispatcher) createTempAudience(ctx context.Context, name string) (string, error) {
	if err := d.limiter.AwaitTurn(ctx); err != nil {
		return "", err
	}
	audienceID, err := d.sink.CreateAudience(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create temp audience: %w", err)
	}
	return audienceID, nil
}

func (d *CampaignDispatcher) createAndSendBroadcast(ctx context.Context, audienceID, from string, job *models.EmailJob, name string) (string, error) {
	if err := d.limiter.AwaitTurn(ctx); err != nil {
		return "", err
	}
	broadcastID, err := d.sink.CreateBroadcast(ctx, services.BroadcastParams{
		AudienceID: audienceID,
		From:       from,
		Subject:    job.Subject,
		HTML:       job.HTMLBody,
		Text:       job.TextBody,
		Name:       name,
	})
	if err != nil {
		return "", fmt.Errorf("create broadcast: %w", err)
	}

	if err := d.limiter.AwaitTurn(ctx); err != nil {
		return "", err
	}
	if err := d.sink.SendBroadcast(ctx, broadcastID); err != nil {
		return "", fmt.Errorf("send broadcast: %w", err)
	}
	return broadcastID, nil
}

// recordSent writes the analytics row. Failure is logged, not fatal: the
// broadcast already went out and the job must not retry over bookkeeping.
func (d *CampaignDispatcher) recordSent(ctx context.Context, tenantID uint, job *models.EmailJob, broadcastID, tempAudienceID string, recipients int) {
	row := &models.SentEmail{
		TenantID:       tenantID,
		JobID:          job.ID,
		BroadcastID:    broadcastID,
		TempAudienceID: tempAudienceID,
		RecipientCount: recipients,
		TriggerType:    job.TriggerType,
		FlowID:         job.FlowID,
		StepIndex:      job.StepIndex,
		SentAt:         utils.UTCNow(),
	}
	if err := d.sentRepo.Save(ctx, row); err != nil {
		d.logger.Printf("dispatcher: job id=%d failed to record sent email: %v", job.ID, err)
	}
}

// scheduleCleanup deletes the temporary audience after a fixed delay.
// Best-effort: errors are logged and never affect the job outcome.
func (d *CampaignDispatcher) scheduleCleanup(audienceID string) {
	time.AfterFunc(d.cleanupDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.limiter.AwaitTurn(ctx); err != nil {
			d.logger.Printf("dispatcher: cleanup of audience %s skipped: %v", audienceID, err)
			return
		}
		if err := d.sink.DeleteAudience(ctx, audienceID); err != nil {
			d.logger.Printf("dispatcher: cleanup of audience %s failed: %v", audienceID, err)
		}
	})
}

// recipientNames extracts first/last names from the job payload when the
// enqueuer supplied them.
func recipientNames(job *models.EmailJob) (first, last string) {
	if len(job.RecipientPayload) == 0 {
		return "", ""
	}
	var payload struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		FullName  string `json:"name"`
	}
	if err := json.Unmarshal(job.RecipientPayload, &payload); err != nil {
		return "", ""
	}
	if payload.FirstName == "" && payload.FullName != "" {
		return models.SplitFullName(payload.FullName)
	}
	return payload.FirstName, payload.LastName
}
