package repository

import (
	"context"

	"github.com/postlane/postlane/models"
	"gorm.io/gorm"
)

// AudienceRepositoryImpl implements AudienceRepository
type AudienceRepositoryImpl struct {
	*BaseRepository[models.Audience, models.AudienceFilter]
}

func NewAudienceRepository(db *gorm.DB) AudienceRepository {
	return &AudienceRepositoryImpl{BaseRepository: NewBaseRepository[models.Audience, models.AudienceFilter](db)}
}

func (r *AudienceRepositoryImpl) Update(ctx context.Context, audience *models.Audience) error {
	db := r.getDB(ctx)
	return db.Save(audience).Error
}

func (r *AudienceRepositoryImpl) ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.Audience, error) {
	db := r.getDB(ctx).Where("tenant_id = ?", tenantID).Order("id DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	var rows []*models.Audience
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
