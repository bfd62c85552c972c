package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/types"
)

type EmbeddingRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, embeddings []*types.Embedding) error
	ListByAnalysisID(ctx context.Context, tx *gorm.DB, analysisID uuid.UUID) ([]*types.Embedding, error)
	// ListAll streams every stored embedding in pages; used to warm the
	// in-process vector index at startup.
	ListAll(ctx context.Context, tx *gorm.DB, fn func(e *types.Embedding) error) error
}

type embeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) EmbeddingRepo {
	return &embeddingRepo{db: db, log: baseLog.With("repo", "EmbeddingRepo")}
}

func (r *embeddingRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *embeddingRepo) CreateBatch(ctx context.Context, tx *gorm.DB, embeddings []*types.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).CreateInBatches(embeddings, 200).Error
}

func (r *embeddingRepo) ListByAnalysisID(ctx context.Context, tx *gorm.DB, analysisID uuid.UUID) ([]*types.Embedding, error) {
	var out []*types.Embedding
	err := r.conn(tx).WithContext(ctx).
		Where("analysis_id = ?", analysisID).
		Order("chunk_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *embeddingRepo) ListAll(ctx context.Context, tx *gorm.DB, fn func(e *types.Embedding) error) error {
	const pageSize = 500
	var page []*types.Embedding
	return r.conn(tx).WithContext(ctx).
		Order("created_at ASC").
		FindInBatches(&page, pageSize, func(_ *gorm.DB, _ int) error {
			for _, e := range page {
				if err := fn(e); err != nil {
					return err
				}
			}
			return nil
		}).Error
}
