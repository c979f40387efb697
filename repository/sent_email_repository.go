package repository

import (
	"context"

	"github.com/postlane/postlane/models"
	"gorm.io/gorm"
)

// SentEmailRepositoryImpl implements SentEmailRepository
type SentEmailRepositoryImpl struct {
	*BaseRepository[models.SentEmail, models.SentEmailFilter]
}

func NewSentEmailRepository(db *gorm.DB) SentEmailRepository {
	return &SentEmailRepositoryImpl{BaseRepository: NewBaseRepository[models.SentEmail, models.SentEmailFilter](db)}
}

func (r *SentEmailRepositoryImpl) ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.SentEmail, error) {
	db := r.getDB(ctx).Where("tenant_id = ?", tenantID).Order("sent_at DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	var rows []*models.SentEmail
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
