package vector

import (
	"context"
	"math"

	"github.com/google/uuid"
)

// Record is one stored vector with the metadata needed to filter and to
// resolve the match back to its embedding row.
type Record struct {
	ID          uuid.UUID
	AnalysisID  uuid.UUID
	EntityID    uuid.UUID
	SectionType string
	ChunkIndex  int
	Vector      []float32
	SourceText  string
}

// Match is one search hit; Score is cosine similarity, higher is better.
type Match struct {
	Record Record
	Score  float64
}

// Index answers nearest-neighbor queries over embedding vectors. Two
// implementations exist: an exact linear scan and a clustered approximate
// index. The provider is a startup-time decision; query code never branches
// on which one it got.
type Index interface {
	Insert(ctx context.Context, rec Record) error
	// Search returns up to k matches by cosine similarity, optionally
	// restricted to a single entity.
	Search(ctx context.Context, query []float32, k int, entityID *uuid.UUID) ([]Match, error)
	Len() int
}

// CosineSimilarity over float32 vectors. Mismatched lengths score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
