package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/fnaplatform/fna-backend/internal/platform/cache"
	"github.com/fnaplatform/fna-backend/internal/platform/embedding"
	"github.com/fnaplatform/fna-backend/internal/platform/lmstudio"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/services"
	"github.com/fnaplatform/fna-backend/internal/vector"
)

type Services struct {
	Lifecycle *services.Lifecycle
	Batch     *services.Batch
	Delta     *services.Delta
	Alert     *services.Alert
	Search    *services.Search
	Trend     *services.Trend

	Notifier services.Notifier
	Index    vector.Index
}

func wireServices(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	sentimentClient, err := lmstudio.NewClient(log, lmstudio.ConfigFromEnv())
	if err != nil {
		return Services{}, fmt.Errorf("init sentiment client: %w", err)
	}
	embedderClient, err := embedding.NewClient(log, embedding.ConfigFromEnv())
	if err != nil {
		return Services{}, fmt.Errorf("init embedding client: %w", err)
	}

	idx, err := resolveVectorIndex(log, cfg, embedderClient.Dimension())
	if err != nil {
		return Services{}, err
	}
	if cfg.WarmIndexOnStartup {
		if err := warmIndex(ctx, log, reposet.Embedding, idx); err != nil {
			return Services{}, err
		}
	}

	sentimentCache := cache.New[lmstudio.Result](cfg.SentimentCacheSize, cfg.SentimentCacheTTL)
	embeddingCache := cache.New[[]float32](cfg.EmbeddingCacheSize, 0)

	notifier, err := services.NewRedisNotifier(ctx, log)
	if err != nil {
		return Services{}, fmt.Errorf("init redis notifier: %w", err)
	}

	lifecycle := services.NewLifecycle(
		db, log, cfg.Lifecycle,
		reposet.Report, reposet.Analysis, reposet.Embedding,
		sentimentClient, embedderClient, idx,
		sentimentCache, embeddingCache,
	)
	batch := services.NewBatch(log, cfg.Batch, reposet.BatchJob, reposet.Report, lifecycle)
	delta := services.NewDelta(log, reposet.Delta, reposet.Analysis)
	alert := services.NewAlert(log, reposet.Alert, reposet.AlertPreference, reposet.Delta, reposet.Analysis, notifier)
	search := services.NewSearch(log, embedderClient, idx, embeddingCache)
	trend := services.NewTrend(log, reposet.Analysis)

	return Services{
		Lifecycle: lifecycle,
		Batch:     batch,
		Delta:     delta,
		Alert:     alert,
		Search:    search,
		Trend:     trend,
		Notifier:  notifier,
		Index:     idx,
	}, nil
}
