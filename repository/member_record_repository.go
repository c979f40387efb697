package repository

import (
	"context"

	"github.com/postlane/postlane/models"
	"github.com/postlane/postlane/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemberRecordRepositoryImpl implements MemberRecordRepository
type MemberRecordRepositoryImpl struct {
	*BaseRepository[models.MemberRecord, models.MemberRecordFilter]
}

func NewMemberRecordRepository(db *gorm.DB) MemberRecordRepository {
	return &MemberRecordRepositoryImpl{BaseRepository: NewBaseRepository[models.MemberRecord, models.MemberRecordFilter](db)}
}

// Upsert inserts or overwrites the record keyed by (audience_id, email).
// Re-running a sync is idempotent: the latest names win, no duplicate rows.
func (r *MemberRecordRepositoryImpl) Upsert(ctx context.Context, record *models.MemberRecord) error {
	db := r.getDB(ctx)
	record.UpdatedAt = utils.UTCNow()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "audience_id"}, {Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "full_name", "source_member_id", "updated_at"}),
	}).Create(record).Error
}

func (r *MemberRecordRepositoryImpl) ListByAudience(ctx context.Context, audienceID uint, limit, offset int) ([]*models.MemberRecord, error) {
	db := r.getDB(ctx).Where("audience_id = ?", audienceID).Order("email ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	var rows []*models.MemberRecord
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *MemberRecordRepositoryImpl) CountByAudience(ctx context.Context, audienceID uint) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := db.Model(&models.MemberRecord{}).Where("audience_id = ?", audienceID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
