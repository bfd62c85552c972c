package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/types"
)

type AlertPreferenceRepo interface {
	// Upsert writes the preference for its (user, entity, type) key,
	// replacing any previous threshold.
	Upsert(ctx context.Context, tx *gorm.DB, pref *types.AlertPreference) error
	ListByEntity(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.AlertPreference, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.AlertPreference, error)
}

type alertPreferenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertPreferenceRepo(db *gorm.DB, baseLog *logger.Logger) AlertPreferenceRepo {
	return &alertPreferenceRepo{db: db, log: baseLog.With("repo", "AlertPreferenceRepo")}
}

func (r *alertPreferenceRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *alertPreferenceRepo) Upsert(ctx context.Context, tx *gorm.DB, pref *types.AlertPreference) error {
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "entity_id"}, {Name: "alert_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"threshold_percentage", "updated_at"}),
		}).
		Create(pref).Error
}

func (r *alertPreferenceRepo) ListByEntity(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.AlertPreference, error) {
	var out []*types.AlertPreference
	err := r.conn(tx).WithContext(ctx).
		Where("entity_id = ?", entityID).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *alertPreferenceRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.AlertPreference, error) {
	var out []*types.AlertPreference
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
