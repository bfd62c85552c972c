package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/types"
)

type AlertRepo interface {
	// CreateIfAbsent inserts the alert unless one already exists for the
	// same (user, delta, type). Returns true when a row was written.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, alert *types.Alert) (bool, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Alert, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*types.Alert, error)
	MarkRead(ctx context.Context, tx *gorm.DB, userID, alertID uuid.UUID) (bool, error)
}

type alertRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertRepo(db *gorm.DB, baseLog *logger.Logger) AlertRepo {
	return &alertRepo{db: db, log: baseLog.With("repo", "AlertRepo")}
}

func (r *alertRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *alertRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, alert *types.Alert) (bool, error) {
	res := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "delta_id"}, {Name: "alert_type"}},
			DoNothing: true,
		}).
		Create(alert)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *alertRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Alert, error) {
	var out types.Alert
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *alertRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*types.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.conn(tx).WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var out []*types.Alert
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *alertRepo) MarkRead(ctx context.Context, tx *gorm.DB, userID, alertID uuid.UUID) (bool, error) {
	res := r.conn(tx).WithContext(ctx).
		Model(&types.Alert{}).
		Where("id = ? AND user_id = ?", alertID, userID).
		Update("is_read", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
