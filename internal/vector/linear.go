package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// linearIndex is the exact implementation: a guarded append-only slice and a
// full scan per query. Correct at any size, O(n) per search.
type linearIndex struct {
	mu      sync.RWMutex
	dim     int
	records []Record
}

func NewLinear(dim int) Index {
	return &linearIndex{dim: dim}
}

func (x *linearIndex) Insert(ctx context.Context, rec Record) error {
	if len(rec.Vector) != x.dim {
		return fmt.Errorf("vector dimension mismatch: want=%d got=%d", x.dim, len(rec.Vector))
	}
	x.mu.Lock()
	x.records = append(x.records, rec)
	x.mu.Unlock()
	return nil
}

func (x *linearIndex) Search(ctx context.Context, query []float32, k int, entityID *uuid.UUID) ([]Match, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("query dimension mismatch: want=%d got=%d", x.dim, len(query))
	}
	if k < 1 {
		return nil, nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return scanTopK(x.records, query, k, entityID), nil
}

func (x *linearIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

func scanTopK(records []Record, query []float32, k int, entityID *uuid.UUID) []Match {
	matches := make([]Match, 0, len(records))
	for _, rec := range records {
		if entityID != nil && rec.EntityID != *entityID {
			continue
		}
		matches = append(matches, Match{Record: rec, Score: CosineSimilarity(query, rec.Vector)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
