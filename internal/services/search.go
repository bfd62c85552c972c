package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/fnaplatform/fna-backend/internal/fnaerr"
	"github.com/fnaplatform/fna-backend/internal/platform/cache"
	"github.com/fnaplatform/fna-backend/internal/platform/embedding"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/vector"
)

var errEmbedCount = errors.New("expected exactly one embedding for the query")

// Search answers "which stored narrative text reads like this" queries by
// embedding the query and probing the vector index.
type Search struct {
	log            *logger.Logger
	embedder       embedding.Client
	index          vector.Index
	embeddingCache *cache.Cache[[]float32]
}

func NewSearch(log *logger.Logger, embedder embedding.Client, index vector.Index, embeddingCache *cache.Cache[[]float32]) *Search {
	return &Search{
		log:            log.With("service", "Search"),
		embedder:       embedder,
		index:          index,
		embeddingCache: embeddingCache,
	}
}

func (s *Search) Similar(ctx context.Context, query string, k int, entityID *uuid.UUID) ([]vector.Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fnaerr.Validation("query", "query text is empty")
	}
	if k <= 0 {
		k = 10
	}

	key := cache.Key("embedding", s.embedder.Model(), query)
	var vec []float32
	if s.embeddingCache != nil {
		if v, ok := s.embeddingCache.Get(key); ok {
			vec = v
		}
	}
	if vec == nil {
		vectors, err := s.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, fnaerr.ExternalService("embedding", errEmbedCount)
		}
		vec = vectors[0]
		if s.embeddingCache != nil {
			s.embeddingCache.Set(key, vec)
		}
	}

	return s.index.Search(ctx, vec, k, entityID)
}
