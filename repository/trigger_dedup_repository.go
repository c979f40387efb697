package repository

import (
	"context"
	"errors"
	"time"

	"github.com/postlane/postlane/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TriggerDedupRepositoryImpl implements TriggerDedupRepository
type TriggerDedupRepositoryImpl struct {
	*BaseRepository[models.TriggerDedupRecord, any]
}

func NewTriggerDedupRepository(db *gorm.DB) TriggerDedupRepository {
	return &TriggerDedupRepositoryImpl{BaseRepository: NewBaseRepository[models.TriggerDedupRecord, any](db)}
}

func (r *TriggerDedupRepositoryImpl) ByKey(ctx context.Context, tenantID uint, triggerType, recipientEmail string) (*models.TriggerDedupRecord, error) {
	db := r.getDB(ctx)
	var row models.TriggerDedupRecord
	err := db.Where("tenant_id = ? AND trigger_type = ? AND recipient_email = ?", tenantID, triggerType, recipientEmail).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// MarkSent records the send idempotently: the unique key makes a concurrent
// duplicate collapse into one row.
func (r *TriggerDedupRepositoryImpl) MarkSent(ctx context.Context, tenantID uint, triggerType, recipientEmail string, sentAt time.Time) error {
	db := r.getDB(ctx)
	row := models.TriggerDedupRecord{
		TenantID:       tenantID,
		TriggerType:    triggerType,
		RecipientEmail: recipientEmail,
		Sent:           true,
		SentAt:         &sentAt,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "trigger_type"}, {Name: "recipient_email"}},
		DoUpdates: clause.AssignmentColumns([]string{"sent", "sent_at"}),
	}).Create(&row).Error
}
