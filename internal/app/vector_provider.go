package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/repos"
	"github.com/fnaplatform/fna-backend/internal/types"
	"github.com/fnaplatform/fna-backend/internal/vector"
)

const (
	VectorProviderLinear = "linear"
	VectorProviderIVF    = "ivf"
)

// resolveVectorIndex picks the in-process index implementation. The choice
// is made once at startup; everything downstream only sees vector.Index.
func resolveVectorIndex(log *logger.Logger, cfg Config, dim int) (vector.Index, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.VectorProvider))
	switch provider {
	case VectorProviderLinear, "":
		log.Info("Selecting vector index provider", "provider", VectorProviderLinear, "dim", dim)
		return vector.NewLinear(dim), nil
	case VectorProviderIVF:
		log.Info("Selecting vector index provider",
			"provider", VectorProviderIVF,
			"dim", dim,
			"lists", cfg.IVFLists,
			"probes", cfg.IVFProbes,
			"train_threshold", cfg.IVFTrainThreshold,
		)
		return vector.NewIVF(vector.IVFConfig{
			Dim:            dim,
			Lists:          cfg.IVFLists,
			NProbe:         cfg.IVFProbes,
			TrainThreshold: cfg.IVFTrainThreshold,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector provider %q", cfg.VectorProvider)
	}
}

// warmIndex replays every persisted embedding into the index so searches
// survive a restart. Rows with malformed vectors are skipped, not fatal.
func warmIndex(ctx context.Context, log *logger.Logger, embeddings repos.EmbeddingRepo, idx vector.Index) error {
	skipped := 0
	err := embeddings.ListAll(ctx, nil, func(e *types.Embedding) error {
		values, err := e.Values()
		if err != nil {
			skipped++
			return nil
		}
		if err := idx.Insert(ctx, vector.Record{
			ID:          e.ID,
			AnalysisID:  e.AnalysisID,
			EntityID:    e.EntityID,
			SectionType: e.SectionType,
			ChunkIndex:  e.ChunkIndex,
			Vector:      values,
			SourceText:  e.SourceText,
		}); err != nil {
			skipped++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("warm vector index: %w", err)
	}
	log.Info("Vector index warmed", "loaded", idx.Len(), "skipped", skipped)
	return nil
}
