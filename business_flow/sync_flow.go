package businessflow

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/postlane/postlane/app/dto"
	"github.com/postlane/postlane/app/services"
	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/repository"
	"github.com/postlane/postlane/utils"
)

// SyncRunner drives one bulk sync to a terminal state. Implemented by the
// streaming worker.
type SyncRunner interface {
	Run(ctx context.Context, job *models.SyncJob, audience *models.Audience) error
}

// ProgressReader serves the hot view of an in-flight sync row without a
// database read. Implemented by the worker's progress tracker; (nil, nil)
// means neither the in-process map nor the cache knows the sync.
type ProgressReader interface {
	Snapshot(ctx context.Context, id uuid.UUID) (*models.SyncJob, error)
}

// SyncFlow provides use cases for starting bulk member syncs and polling
// their progress.
type SyncFlow interface {
	StartBulkSync(ctx context.Context, req *dto.StartSyncRequest, metadata *ClientMetadata) (*dto.StartSyncResponse, error)
	GetSyncProgress(ctx context.Context, tenantID uint, syncUUID string) (*dto.SyncJobDTO, error)
}

type SyncFlowImpl struct {
	syncRepo     repository.SyncJobRepository
	audienceRepo repository.AudienceRepository
	tenantRepo   repository.TenantRepository
	sink         services.EmailSinkClient
	limiter      services.RateLimiter
	runner       SyncRunner
	progress     ProgressReader
	logger       *log.Logger

	// runTimeout bounds the detached sync goroutine.
	runTimeout time.Duration
}

func NewSyncFlow(
	syncRepo repository.SyncJobRepository,
	audienceRepo repository.AudienceRepository,
	tenantRepo repository.TenantRepository,
	sink services.EmailSinkClient,
	limiter services.RateLimiter,
	runner SyncRunner,
	progress ProgressReader,
	logger *log.Logger,
) SyncFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &SyncFlowImpl{
		syncRepo:     syncRepo,
		audienceRepo: audienceRepo,
		tenantRepo:   tenantRepo,
		sink:         sink,
		limiter:      limiter,
		runner:       runner,
		progress:     progress,
		logger:       logger,
		runTimeout:   2 * time.Hour,
	}
}

// StartBulkSync creates the local audience, its sink counterpart and the
// sync job row, then returns immediately. The stream itself proceeds in a
// detached goroutine; callers poll progress by the returned UUID.
func (f *SyncFlowImpl) StartBulkSync(ctx context.Context, req *dto.StartSyncRequest, metadata *ClientMetadata) (*dto.StartSyncResponse, error) {
	if f.runner == nil {
		return nil, NewBusinessError("SOURCE_NOT_CONFIGURED", "Member source is not configured", ErrSourceNotConfigured)
	}

	tenant, err := f.tenantRepo.ByID(ctx, req.TenantID)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to look up tenant", err)
	}
	if tenant == nil {
		return nil, NewBusinessError("TENANT_NOT_FOUND", "Tenant not found", ErrTenantNotFound)
	}

	// Refuse a second concurrent sync of the same source list; re-running
	// after a terminal state is fine because member upserts are idempotent.
	processing := models.SyncStatusProcessing
	existing, err := f.findSync(ctx, req.TenantID, req.SourceAudienceID, processing)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewBusinessError("SYNC_ALREADY_RUNNING", "A sync is already running for this audience", ErrSyncAlreadyRunning)
	}

	audience := &models.Audience{
		TenantID:         req.TenantID,
		Name:             req.AudienceName,
		SourceAudienceID: req.SourceAudienceID,
	}
	if err := f.audienceRepo.Save(ctx, audience); err != nil {
		return nil, NewBusinessError("AUDIENCE_CREATE_FAILED", "Failed to create audience", err)
	}

	// The sink audience is created synchronously so a sink outage surfaces
	// to the caller instead of a failed background job.
	if err := f.limiter.AwaitTurn(ctx); err != nil {
		return nil, NewBusinessError("SINK_UNAVAILABLE", "Failed to reach email provider", err)
	}
	sinkAudienceID, err := f.sink.CreateAudience(ctx, req.AudienceName)
	if err != nil {
		return nil, NewBusinessError("SINK_AUDIENCE_FAILED", "Failed to create sink audience", err)
	}

	job := &models.SyncJob{
		UUID:             uuid.New(),
		TenantID:         req.TenantID,
		AudienceID:       audience.ID,
		SourceAudienceID: req.SourceAudienceID,
		SinkAudienceID:   sinkAudienceID,
		Status:           models.SyncStatusPending,
		CurrentPhase:     models.SyncPhaseStarting,
		StartedAt:        utils.UTCNow(),
	}
	if err := f.syncRepo.Save(ctx, job); err != nil {
		return nil, NewBusinessError("SYNC_CREATE_FAILED", "Failed to create sync job", err)
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), f.runTimeout)
		defer cancel()
		if err := f.runner.Run(runCtx, job, audience); err != nil {
			f.logger.Printf("sync: run %s finished with error: %v", job.UUID, err)
		}
	}()

	return &dto.StartSyncResponse{
		SyncUUID:   job.UUID.String(),
		AudienceID: audience.ID,
		Status:     job.Status,
	}, nil
}

// GetSyncProgress answers polling requests. The tracker's in-memory/cached
// snapshot is tried first; the durable row is the fallback and reflects the
// latest completed page even across process restarts.
func (f *SyncFlowImpl) GetSyncProgress(ctx context.Context, tenantID uint, syncUUID string) (*dto.SyncJobDTO, error) {
	id, err := uuid.Parse(syncUUID)
	if err != nil {
		return nil, NewBusinessError("INVALID_SYNC_UUID", "Sync UUID is invalid", err)
	}

	// Snapshot misses and errors fall through to the DB. A tenant mismatch
	// falls through as well so the not-found answer comes from one place.
	if f.progress != nil {
		if cached, err := f.progress.Snapshot(ctx, id); err == nil && cached != nil && cached.TenantID == tenantID {
			out := ToSyncJobDTO(*cached)
			return &out, nil
		}
	}

	job, err := f.syncRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("SYNC_LOOKUP_FAILED", "Failed to look up sync job", err)
	}
	if job == nil || job.TenantID != tenantID {
		return nil, NewBusinessError("SYNC_NOT_FOUND", "Sync job not found", ErrSyncJobNotFound)
	}
	out := ToSyncJobDTO(*job)
	return &out, nil
}

func (f *SyncFlowImpl) findSync(ctx context.Context, tenantID uint, sourceAudienceID, status string) (*models.SyncJob, error) {
	audiences, err := f.audienceRepo.ListByTenant(ctx, tenantID, 0, 0)
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_LOOKUP_FAILED", "Failed to list audiences", err)
	}
	for _, a := range audiences {
		if a.SourceAudienceID != sourceAudienceID {
			continue
		}
		jobs, err := f.syncRepo.ByFilter(ctx, models.SyncJobFilter{AudienceID: &a.ID, Status: &status})
		if err != nil {
			return nil, NewBusinessError("SYNC_LOOKUP_FAILED", "Failed to look up sync jobs", err)
		}
		if len(jobs) > 0 {
			return jobs[0], nil
		}
	}
	return nil, nil
}
