package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/types"
)

type BatchJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.BatchJob) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.BatchJob, error)
	Update(ctx context.Context, tx *gorm.DB, job *types.BatchJob) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.BatchJob, error)
}

type batchJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchJobRepo(db *gorm.DB, baseLog *logger.Logger) BatchJobRepo {
	return &batchJobRepo{db: db, log: baseLog.With("repo", "BatchJobRepo")}
}

func (r *batchJobRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *batchJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.BatchJob) error {
	return r.conn(tx).WithContext(ctx).Create(job).Error
}

func (r *batchJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.BatchJob, error) {
	var out types.BatchJob
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *batchJobRepo) Update(ctx context.Context, tx *gorm.DB, job *types.BatchJob) error {
	return r.conn(tx).WithContext(ctx).Save(job).Error
}

func (r *batchJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.BatchJob{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *batchJobRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.BatchJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []*types.BatchJob
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
