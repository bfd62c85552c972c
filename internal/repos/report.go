package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/types"
)

type ReportRepo interface {
	Create(ctx context.Context, tx *gorm.DB, reports []*types.Report) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Report, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Report, error)
	// ClaimPending atomically moves PENDING -> PROCESSING. It reports
	// whether this caller won the claim; a false result with a nil error
	// means the report was not PENDING at the moment of the update.
	ClaimPending(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, processedAt time.Time) error
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, lastError string) error
	// Requeue moves the report back to PENDING from the given terminal
	// states and clears last_error. Reports whether a row changed.
	Requeue(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatuses []string) (bool, error)
}

type reportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReportRepo(db *gorm.DB, baseLog *logger.Logger) ReportRepo {
	return &reportRepo{db: db, log: baseLog.With("repo", "ReportRepo")}
}

func (r *reportRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *reportRepo) Create(ctx context.Context, tx *gorm.DB, reports []*types.Report) error {
	if len(reports) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(&reports).Error
}

func (r *reportRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Report, error) {
	var report types.Report
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Report, error) {
	var out []*types.Report
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.conn(tx).WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reportRepo) ClaimPending(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	res := r.conn(tx).WithContext(ctx).
		Model(&types.Report{}).
		Where("id = ? AND status = ?", id, types.ReportStatusPending).
		Update("status", types.ReportStatusProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *reportRepo) MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, processedAt time.Time) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Report{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       types.ReportStatusCompleted,
			"processed_at": processedAt,
			"last_error":   "",
		}).Error
}

func (r *reportRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, lastError string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Report{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     types.ReportStatusFailed,
			"last_error": lastError,
		}).Error
}

func (r *reportRepo) Requeue(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatuses []string) (bool, error) {
	res := r.conn(tx).WithContext(ctx).
		Model(&types.Report{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(map[string]interface{}{
			"status":     types.ReportStatusPending,
			"last_error": "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
