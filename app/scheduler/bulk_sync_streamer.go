package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/postlane/postlane/app/services"
	"github.com/postlane/postlane/config"
	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/repository"
	"github.com/postlane/postlane/utils"
)

// BulkSyncStreamer streams a paginated external member list into local
// storage and a remote sink audience simultaneously. Page 1 resolves the
// total; each subsequent page runs two independent syncs with per-member
// error isolation. A page-fetch failure aborts the whole run because the
// remaining pages cannot be known safely; a fresh run starts over from page 1
// and the (audience_id, email) upsert keeps re-processing idempotent.
type BulkSyncStreamer struct {
	source       services.MemberSource
	sink         services.EmailSinkClient
	limiter      services.RateLimiter
	memberRepo   repository.MemberRecordRepository
	audienceRepo repository.AudienceRepository
	tracker      *ProgressTracker
	metrics      *DispatchMetrics
	cfg          config.SourceConfig
	logger       *log.Logger
}

func NewBulkSyncStreamer(
	source services.MemberSource,
	sink services.EmailSinkClient,
	limiter services.RateLimiter,
	memberRepo repository.MemberRecordRepository,
	audienceRepo repository.AudienceRepository,
	tracker *ProgressTracker,
	metrics *DispatchMetrics,
	cfg config.SourceConfig,
	logger *log.Logger,
) *BulkSyncStreamer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BulkSyncStreamer{
		source:       source,
		sink:         sink,
		limiter:      limiter,
		memberRepo:   memberRepo,
		audienceRepo: audienceRepo,
		tracker:      tracker,
		metrics:      metrics,
		cfg:          cfg,
		logger:       logger,
	}
}

// Run drives one sync to a terminal state, mutating the job row through the
// tracker as pages complete. The caller owns job and audience creation.
func (s *BulkSyncStreamer) Run(ctx context.Context, job *models.SyncJob, audience *models.Audience) error {
	job.Status = models.SyncStatusProcessing
	job.CurrentPhase = models.SyncPhaseStarting
	if err := s.tracker.Update(ctx, job); err != nil {
		return s.fail(ctx, job, fmt.Errorf("persist sync start: %w", err))
	}

	// Page 1 discovers the total; total_pages is derived from the fixed page
	// size rather than trusted from the source.
	job.CurrentPhase = models.SyncPhaseFetchingPage
	_ = s.tracker.Update(ctx, job)

	first, err := s.source.FetchPage(ctx, job.SourceAudienceID, 1, s.cfg.PageSize)
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("fetch page 1: %w", err))
	}
	job.TotalMembers = first.Pagination.TotalCount
	totalPages := (job.TotalMembers + s.cfg.PageSize - 1) / s.cfg.PageSize
	if totalPages == 0 {
		totalPages = 1
	}

	page := first
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		if pageNum > 1 {
			job.CurrentPhase = models.SyncPhaseFetchingPage
			_ = s.tracker.Update(ctx, job)

			page, err = s.source.FetchPage(ctx, job.SourceAudienceID, pageNum, s.cfg.PageSize)
			if err != nil {
				return s.fail(ctx, job, fmt.Errorf("fetch page %d: %w", pageNum, err))
			}
		}

		records := normalizeMembers(audience.ID, page.Data)
		s.syncToStore(ctx, job, records)
		s.syncToSink(ctx, job, page.Data)

		job.ProcessedCount += len(page.Data)
		if job.ProcessedCount > job.TotalMembers {
			job.ProcessedCount = job.TotalMembers
		}
		if err := s.tracker.Update(ctx, job); err != nil {
			s.logger.Printf("sync %s: progress persist after page %d failed: %v", job.UUID, pageNum, err)
		}
		if s.metrics != nil {
			s.metrics.ObserveSyncMembers(len(page.Data), 0)
		}

		// Small spacing between pages so neither API sees a burst.
		if pageNum < totalPages && s.cfg.InterPageDelay > 0 {
			select {
			case <-ctx.Done():
				return s.fail(ctx, job, ctx.Err())
			case <-time.After(s.cfg.InterPageDelay):
			}
		}
	}

	return s.finalize(ctx, job, audience)
}

// syncToStore upserts each member with a non-empty email into local storage.
// Per-member errors are logged and skipped, never fatal to the page.
func (s *BulkSyncStreamer) syncToStore(ctx context.Context, job *models.SyncJob, records []*models.MemberRecord) {
	job.CurrentPhase = models.SyncPhaseSyncingToStore
	_ = s.tracker.Update(ctx, job)

	for _, rec := range records {
		if rec.Email == "" {
			s.recordFailure(job, rec.SourceMemberID+" (no email)")
			continue
		}
		if err := s.memberRepo.Upsert(ctx, rec); err != nil {
			s.logger.Printf("sync %s: store upsert for %s failed: %v", job.UUID, rec.Email, err)
			s.recordFailure(job, rec.Email)
			continue
		}
		job.SyncedToStoreCount++
	}
}

// syncToSink creates a contact in the remote audience per member, spaced by
// the shared rate limiter. Per-member errors are logged and skipped.
func (s *BulkSyncStreamer) syncToSink(ctx context.Context, job *models.SyncJob, members []services.RawMember) {
	job.CurrentPhase = models.SyncPhaseSyncingToSink
	_ = s.tracker.Update(ctx, job)

	for _, m := range members {
		if m.Email == "" {
			continue
		}
		if err := s.limiter.AwaitTurn(ctx); err != nil {
			s.logger.Printf("sync %s: rate limiter interrupted: %v", job.UUID, err)
			return
		}
		first, last := memberNames(m)
		if _, err := s.sink.CreateContact(ctx, job.SinkAudienceID, m.Email, first, last); err != nil {
			s.logger.Printf("sync %s: sink contact for %s failed: %v", job.UUID, m.Email, err)
			s.recordFailure(job, m.Email)
			if s.metrics != nil {
				s.metrics.ObserveSyncMembers(0, 1)
			}
			continue
		}
		job.SyncedToSinkCount++
	}
}

// recordFailure appends to the capped skipped-member sample.
func (s *BulkSyncStreamer) recordFailure(job *models.SyncJob, email string) {
	if len(job.FailedEmails) < utils.MaxSyncFailureSamples {
		job.FailedEmails = append(job.FailedEmails, email)
	}
}

func (s *BulkSyncStreamer) finalize(ctx context.Context, job *models.SyncJob, audience *models.Audience) error {
	job.CurrentPhase = models.SyncPhaseFinalizing
	_ = s.tracker.Update(ctx, job)

	count, err := s.memberRepo.CountByAudience(ctx, audience.ID)
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("count members: %w", err))
	}
	audience.MemberCount = int(count)
	audience.Ready = true
	audience.SinkAudienceID = job.SinkAudienceID
	if err := s.audienceRepo.Update(ctx, audience); err != nil {
		return s.fail(ctx, job, fmt.Errorf("update audience: %w", err))
	}

	job.Status = models.SyncStatusCompleted
	job.CurrentPhase = models.SyncPhaseDone
	if err := s.tracker.Update(ctx, job); err != nil {
		return err
	}
	s.tracker.Forget(job.UUID)
	s.logger.Printf("sync %s: completed, %d members (%d store, %d sink, %d skipped)",
		job.UUID, job.ProcessedCount, job.SyncedToStoreCount, job.SyncedToSinkCount, len(job.FailedEmails))
	return nil
}

// fail terminally fails the run, preserving the accumulated processed count.
func (s *BulkSyncStreamer) fail(ctx context.Context, job *models.SyncJob, cause error) error {
	s.logger.Printf("sync %s: aborted: %v", job.UUID, cause)
	msg := cause.Error()
	job.Status = models.SyncStatusFailed
	job.Error = &msg
	if err := s.tracker.Update(ctx, job); err != nil {
		s.logger.Printf("sync %s: failed to persist failure: %v", job.UUID, err)
	}
	s.tracker.Forget(job.UUID)
	return cause
}

// normalizeMembers maps raw source records onto MemberRecord rows, splitting
// display names when the source only exposes a full name.
func normalizeMembers(audienceID uint, raw []services.RawMember) []*models.MemberRecord {
	out := make([]*models.MemberRecord, 0, len(raw))
	for _, m := range raw {
		first, last := memberNames(m)
		out = append(out, &models.MemberRecord{
			AudienceID:     audienceID,
			Email:          m.Email,
			FirstName:      first,
			LastName:       last,
			FullName:       m.FullName,
			SourceMemberID: m.ID,
		})
	}
	return out
}

func memberNames(m services.RawMember) (first, last string) {
	if m.FirstName != "" || m.LastName != "" {
		return m.FirstName, m.LastName
	}
	return models.SplitFullName(m.FullName)
}
