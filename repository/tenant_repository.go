package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/postlane/postlane/models"
	"gorm.io/gorm"
)

// TenantRepositoryImpl implements TenantRepository
type TenantRepositoryImpl struct {
	*BaseRepository[models.Tenant, models.TenantFilter]
}

func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &TenantRepositoryImpl{BaseRepository: NewBaseRepository[models.Tenant, models.TenantFilter](db)}
}

func (r *TenantRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	db := r.getDB(ctx)
	var row models.Tenant
	if err := db.Where("uuid = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
