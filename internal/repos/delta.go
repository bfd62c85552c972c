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

type DeltaRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Delta, error)
	GetByPair(ctx context.Context, tx *gorm.DB, baseAnalysisID, comparisonAnalysisID uuid.UUID) (*types.Delta, error)
	// Upsert writes the delta for its (base, comparison) pair. Re-comparing
	// the same ordered pair overwrites the previous row in place.
	Upsert(ctx context.Context, tx *gorm.DB, delta *types.Delta) error
	ListByEntity(ctx context.Context, tx *gorm.DB, entityID uuid.UUID, limit int) ([]*types.Delta, error)
}

type deltaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeltaRepo(db *gorm.DB, baseLog *logger.Logger) DeltaRepo {
	return &deltaRepo{db: db, log: baseLog.With("repo", "DeltaRepo")}
}

func (r *deltaRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *deltaRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Delta, error) {
	var out types.Delta
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *deltaRepo) GetByPair(ctx context.Context, tx *gorm.DB, baseAnalysisID, comparisonAnalysisID uuid.UUID) (*types.Delta, error) {
	var out types.Delta
	err := r.conn(tx).WithContext(ctx).
		Where("base_analysis_id = ? AND comparison_analysis_id = ?", baseAnalysisID, comparisonAnalysisID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *deltaRepo) Upsert(ctx context.Context, tx *gorm.DB, delta *types.Delta) error {
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "base_analysis_id"}, {Name: "comparison_analysis_id"}},
			UpdateAll: true,
		}).
		Create(delta).Error
}

func (r *deltaRepo) ListByEntity(ctx context.Context, tx *gorm.DB, entityID uuid.UUID, limit int) ([]*types.Delta, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.Delta
	err := r.conn(tx).WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
