package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/postlane/postlane/models"
	"gorm.io/gorm"
)

// SyncJobRepositoryImpl implements SyncJobRepository
type SyncJobRepositoryImpl struct {
	*BaseRepository[models.SyncJob, models.SyncJobFilter]
}

func NewSyncJobRepository(db *gorm.DB) SyncJobRepository {
	return &SyncJobRepositoryImpl{BaseRepository: NewBaseRepository[models.SyncJob, models.SyncJobFilter](db)}
}

func (r *SyncJobRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	db := r.getDB(ctx)
	var row models.SyncJob
	if err := db.Where("uuid = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *SyncJobRepositoryImpl) Update(ctx context.Context, job *models.SyncJob) error {
	db := r.getDB(ctx)
	return db.Save(job).Error
}

func (r *SyncJobRepositoryImpl) ByFilter(ctx context.Context, filter models.SyncJobFilter) ([]*models.SyncJob, error) {
	db := r.getDB(ctx).Model(&models.SyncJob{})
	if filter.TenantID != nil {
		db = db.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.AudienceID != nil {
		db = db.Where("audience_id = ?", *filter.AudienceID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	var rows []*models.SyncJob
	if err := db.Order("started_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
