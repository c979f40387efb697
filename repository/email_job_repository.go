package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/utils"
	"gorm.io/gorm"
)

// Retry backoff bounds. The delay grows exponentially with attempt_count and
// is stored as data (scheduled_for) so retries survive process restarts.
const (
	retryBackoffBase = 30 * time.Second
	retryBackoffCap  = 30 * time.Minute
)

// RetryBackoff returns the delay applied before the given attempt is
// re-queued. attempt is the attempt count AFTER incrementing.
func RetryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := retryBackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= retryBackoffCap {
			return retryBackoffCap
		}
	}
	if d > retryBackoffCap {
		d = retryBackoffCap
	}
	return d
}

// EmailJobRepositoryImpl implements EmailJobRepository
type EmailJobRepositoryImpl struct {
	*BaseRepository[models.EmailJob, models.EmailJobFilter]
}

func NewEmailJobRepository(db *gorm.DB) EmailJobRepository {
	return &EmailJobRepositoryImpl{BaseRepository: NewBaseRepository[models.EmailJob, models.EmailJobFilter](db)}
}

// ClaimNext atomically claims one due pending job for workerID.
//
// The inner SELECT uses FOR UPDATE SKIP LOCKED so concurrent invocations
// never observe the same candidate row; the UPDATE flips it to processing in
// the same statement and RETURNING hands the claimed row back.
func (r *EmailJobRepositoryImpl) ClaimNext(ctx context.Context, workerID string) (*models.EmailJob, error) {
	db := r.getDB(ctx)
	now := utils.UTCNow()

	var job models.EmailJob
	err := db.Raw(`
		UPDATE email_jobs
		SET status = ?, worker_id = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM email_jobs
			WHERE status = ? AND scheduled_for <= ?
			ORDER BY priority DESC, scheduled_for ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		models.JobStatusProcessing, workerID, now,
		models.JobStatusPending, now,
	).Scan(&job).Error
	if err != nil {
		return nil, fmt.Errorf("failed to claim next job: %w", err)
	}
	if job.ID == 0 {
		return nil, nil // queue drained
	}
	return &job, nil
}

// Complete marks the job completed or records the failure reason. A failed
// job stays in processing state until ScheduleRetry decides its fate.
func (r *EmailJobRepositoryImpl) Complete(ctx context.Context, jobID uint, success bool, errorMessage string) error {
	db := r.getDB(ctx)
	now := utils.UTCNow()

	updates := map[string]any{"updated_at": now}
	if success {
		updates["status"] = models.JobStatusCompleted
		updates["last_error"] = nil
	} else {
		updates["last_error"] = errorMessage
	}
	res := db.Model(&models.EmailJob{}).Where("id = ?", jobID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to complete job %d: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %d not found", jobID)
	}
	return nil
}

// ScheduleRetry increments attempt_count and either re-queues the job with a
// backoff-delayed scheduled_for (true) or terminally fails it (false).
func (r *EmailJobRepositoryImpl) ScheduleRetry(ctx context.Context, jobID uint, maxAttempts int) (bool, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	retried := false
	err := WithTransaction(ctx, r.DB, func(txCtx context.Context) error {
		tx := r.getDB(txCtx)

		var job models.EmailJob
		if err := tx.Clauses().Raw(`SELECT * FROM email_jobs WHERE id = ? FOR UPDATE`, jobID).Scan(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("job %d not found", jobID)
			}
			return err
		}
		if job.ID == 0 {
			return fmt.Errorf("job %d not found", jobID)
		}
		if job.Status == models.JobStatusCompleted || job.Status == models.JobStatusFailed {
			return nil // terminal, nothing to retry
		}

		now := utils.UTCNow()
		attempt := job.AttemptCount + 1
		updates := map[string]any{
			"attempt_count": attempt,
			"updated_at":    now,
		}
		if attempt < maxAttempts {
			updates["status"] = models.JobStatusPending
			updates["worker_id"] = nil
			updates["scheduled_for"] = now.Add(RetryBackoff(attempt))
			retried = true
		} else {
			updates["status"] = models.JobStatusFailed
		}
		return tx.Model(&models.EmailJob{}).Where("id = ?", jobID).Updates(updates).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to schedule retry for job %d: %w", jobID, err)
	}
	return retried, nil
}

// Fail terminally fails the job regardless of remaining attempts.
func (r *EmailJobRepositoryImpl) Fail(ctx context.Context, jobID uint, errorMessage string) error {
	db := r.getDB(ctx)
	res := db.Model(&models.EmailJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"status":     models.JobStatusFailed,
		"last_error": errorMessage,
		"updated_at": utils.UTCNow(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to fail job %d: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %d not found", jobID)
	}
	return nil
}

// ByFilter retrieves jobs matching the filter criteria
func (r *EmailJobRepositoryImpl) ByFilter(ctx context.Context, filter models.EmailJobFilter, orderBy string, limit, offset int) ([]*models.EmailJob, error) {
	db := r.getDB(ctx).Model(&models.EmailJob{})
	if filter.TenantID != nil {
		db = db.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.JobType != nil {
		db = db.Where("job_type = ?", *filter.JobType)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.TriggerType != nil {
		db = db.Where("trigger_type = ?", *filter.TriggerType)
	}
	if filter.ScheduledBefore != nil {
		db = db.Where("scheduled_for <= ?", *filter.ScheduledBefore)
	}
	if filter.ScheduledAfter != nil {
		db = db.Where("scheduled_for >= ?", *filter.ScheduledAfter)
	}
	if orderBy != "" {
		db = db.Order(orderBy)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	var rows []*models.EmailJob
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
