package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/types"
)

type AnalysisRepo interface {
	Create(ctx context.Context, tx *gorm.DB, analysis *types.Analysis) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Analysis, error)
	// GetByIDWithReport preloads the owning report; the delta engine needs
	// the report's entity and filing date.
	GetByIDWithReport(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Analysis, error)
	GetLatestByReportID(ctx context.Context, tx *gorm.DB, reportID uuid.UUID) (*types.Analysis, error)
	// ListLatestByEntity returns, per completed report of the entity, the
	// most recent analysis, ordered by filing date ascending.
	ListLatestByEntity(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.Analysis, error)
}

type analysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRepo {
	return &analysisRepo{db: db, log: baseLog.With("repo", "AnalysisRepo")}
}

func (r *analysisRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *analysisRepo) Create(ctx context.Context, tx *gorm.DB, analysis *types.Analysis) error {
	return r.conn(tx).WithContext(ctx).Create(analysis).Error
}

func (r *analysisRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Analysis, error) {
	var out types.Analysis
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *analysisRepo) GetByIDWithReport(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Analysis, error) {
	var out types.Analysis
	err := r.conn(tx).WithContext(ctx).Preload("Report").Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *analysisRepo) GetLatestByReportID(ctx context.Context, tx *gorm.DB, reportID uuid.UUID) (*types.Analysis, error) {
	var out types.Analysis
	err := r.conn(tx).WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("created_at DESC").
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *analysisRepo) ListLatestByEntity(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.Analysis, error) {
	var out []*types.Analysis
	err := r.conn(tx).WithContext(ctx).
		Preload("Report").
		Joins("JOIN reports ON reports.id = analyses.report_id").
		Where("reports.entity_id = ? AND reports.status = ?", entityID, types.ReportStatusCompleted).
		Where(`analyses.created_at = (
			SELECT MAX(a2.created_at) FROM analyses a2 WHERE a2.report_id = analyses.report_id
		)`).
		Order("reports.filing_date ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
