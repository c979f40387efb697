package repository

import (
	"context"
	"errors"
	"time"

	"github.com/postlane/postlane/models"
	"gorm.io/gorm"
)

// FlowRepositoryImpl implements FlowRepository
type FlowRepositoryImpl struct {
	DB *gorm.DB
}

func NewFlowRepository(db *gorm.DB) FlowRepository {
	return &FlowRepositoryImpl{DB: db}
}

func (r *FlowRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.DB
}

func (r *FlowRepositoryImpl) FlowByID(ctx context.Context, flowID uint) (*models.Flow, error) {
	db := r.getDB(ctx)
	var row models.Flow
	if err := db.Last(&row, flowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *FlowRepositoryImpl) StepByIndex(ctx context.Context, flowID uint, stepIndex int) (*models.FlowStep, error) {
	db := r.getDB(ctx)
	var row models.FlowStep
	err := db.Where("flow_id = ? AND step_index = ?", flowID, stepIndex).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *FlowRepositoryImpl) StepCount(ctx context.Context, flowID uint) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := db.Model(&models.FlowStep{}).Where("flow_id = ?", flowID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *FlowRepositoryImpl) EnrollmentsAtStep(ctx context.Context, flowID uint, stepIndex int) ([]*models.FlowEnrollment, error) {
	db := r.getDB(ctx)
	var rows []*models.FlowEnrollment
	err := db.Where("flow_id = ? AND current_step = ? AND completed = false", flowID, stepIndex).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *FlowRepositoryImpl) AdvanceEnrollment(ctx context.Context, enrollmentID uint, terminal bool, now time.Time) error {
	db := r.getDB(ctx)
	updates := map[string]any{"updated_at": now}
	if terminal {
		updates["completed"] = true
		updates["completed_at"] = now
	} else {
		updates["current_step"] = gorm.Expr("current_step + 1")
	}
	return db.Model(&models.FlowEnrollment{}).Where("id = ?", enrollmentID).Updates(updates).Error
}

func (r *FlowRepositoryImpl) IncrementFlowCounters(ctx context.Context, flowID uint, triggered, completed int) error {
	db := r.getDB(ctx)
	updates := map[string]any{}
	if triggered != 0 {
		updates["triggered_count"] = gorm.Expr("triggered_count + ?", triggered)
	}
	if completed != 0 {
		updates["completed_count"] = gorm.Expr("completed_count + ?", completed)
	}
	if len(updates) == 0 {
		return nil
	}
	return db.Model(&models.Flow{}).Where("id = ?", flowID).Updates(updates).Error
}

func (r *FlowRepositoryImpl) SaveEnrollment(ctx context.Context, enrollment *models.FlowEnrollment) error {
	return r.getDB(ctx).Create(enrollment).Error
}

func (r *FlowRepositoryImpl) SaveFlow(ctx context.Context, flow *models.Flow) error {
	return r.getDB(ctx).Create(flow).Error
}

func (r *FlowRepositoryImpl) SaveStep(ctx context.Context, step *models.FlowStep) error {
	return r.getDB(ctx).Create(step).Error
}
