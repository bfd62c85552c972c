package vector

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: want=1 got=%v", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: want=0 got=%v", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Fatalf("mismatched lengths: want=0 got=%v", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("zero vector: want=0 got=%v", got)
	}
}

func insertN(t *testing.T, idx Index, n, dim int, entityID uuid.UUID, rng *rand.Rand) []Record {
	t.Helper()
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = rng.Float32()*2 - 1
		}
		rec := Record{
			ID:         uuid.New(),
			AnalysisID: uuid.New(),
			EntityID:   entityID,
			ChunkIndex: i,
			Vector:     vec,
		}
		if err := idx.Insert(context.Background(), rec); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestLinearSearchRanksByCosine(t *testing.T) {
	idx := NewLinear(2)
	entity := uuid.New()
	recs := []Record{
		{ID: uuid.New(), EntityID: entity, Vector: []float32{1, 0}},
		{ID: uuid.New(), EntityID: entity, Vector: []float32{0.9, 0.1}},
		{ID: uuid.New(), EntityID: entity, Vector: []float32{0, 1}},
	}
	for _, r := range recs {
		if err := idx.Insert(context.Background(), r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	matches, err := idx.Search(context.Background(), []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches: want=2 got=%d", len(matches))
	}
	if matches[0].Record.ID != recs[0].ID {
		t.Fatalf("best match: want=%s got=%s", recs[0].ID, matches[0].Record.ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Fatalf("matches not sorted by score: %v then %v", matches[0].Score, matches[1].Score)
	}
}

func TestLinearSearchEntityFilter(t *testing.T) {
	idx := NewLinear(2)
	a, b := uuid.New(), uuid.New()
	_ = idx.Insert(context.Background(), Record{ID: uuid.New(), EntityID: a, Vector: []float32{1, 0}})
	_ = idx.Insert(context.Background(), Record{ID: uuid.New(), EntityID: b, Vector: []float32{1, 0}})

	matches, err := idx.Search(context.Background(), []float32{1, 0}, 10, &a)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Record.EntityID != a {
		t.Fatalf("filter leaked records: %+v", matches)
	}
}

func TestLinearInsertDimensionMismatch(t *testing.T) {
	idx := NewLinear(3)
	err := idx.Insert(context.Background(), Record{ID: uuid.New(), Vector: []float32{1, 2}})
	if err == nil {
		t.Fatalf("expected dimension error")
	}
}

func TestIVFUnderPopulatedMatchesExactScan(t *testing.T) {
	const dim = 8
	rng := rand.New(rand.NewSource(7))
	ivf := NewIVF(IVFConfig{Dim: dim, Lists: 4, NProbe: 1, TrainThreshold: 1000})
	linear := NewLinear(dim)

	entity := uuid.New()
	for _, rec := range insertN(t, ivf, 50, dim, entity, rng) {
		if err := linear.Insert(context.Background(), rec); err != nil {
			t.Fatalf("Insert linear: %v", err)
		}
	}

	query := make([]float32, dim)
	query[0] = 1
	got, err := ivf.Search(context.Background(), query, 5, nil)
	if err != nil {
		t.Fatalf("ivf search: %v", err)
	}
	want, err := linear.Search(context.Background(), query, 5, nil)
	if err != nil {
		t.Fatalf("linear search: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("result count: want=%d got=%d", len(want), len(got))
	}
	for i := range got {
		if got[i].Record.ID != want[i].Record.ID {
			t.Fatalf("result %d: want=%s got=%s", i, want[i].Record.ID, got[i].Record.ID)
		}
	}
}

func TestIVFTrainsAndStillFindsNearDuplicates(t *testing.T) {
	const dim = 8
	rng := rand.New(rand.NewSource(11))
	ivf := NewIVF(IVFConfig{Dim: dim, Lists: 4, NProbe: 4, TrainThreshold: 16})

	entity := uuid.New()
	insertN(t, ivf, 200, dim, entity, rng)
	if ivf.Len() != 200 {
		t.Fatalf("len: want=200 got=%d", ivf.Len())
	}

	// Insert a known vector after training and query for it; probing every
	// list makes the search exhaustive, so it must come back first.
	target := Record{ID: uuid.New(), EntityID: entity, Vector: []float32{1, 0, 0, 0, 0, 0, 0, 0}}
	if err := ivf.Insert(context.Background(), target); err != nil {
		t.Fatalf("Insert target: %v", err)
	}
	matches, err := ivf.Search(context.Background(), target.Vector, 3, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) == 0 || matches[0].Record.ID != target.ID {
		t.Fatalf("target not first match: %+v", matches)
	}
}

func TestIVFEntityFilterAfterTraining(t *testing.T) {
	const dim = 4
	rng := rand.New(rand.NewSource(3))
	ivf := NewIVF(IVFConfig{Dim: dim, Lists: 2, NProbe: 2, TrainThreshold: 8})

	a, b := uuid.New(), uuid.New()
	insertN(t, ivf, 20, dim, a, rng)
	insertN(t, ivf, 20, dim, b, rng)

	query := []float32{1, 0, 0, 0}
	matches, err := ivf.Search(context.Background(), query, 40, &b)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no matches for filtered entity")
	}
	for _, m := range matches {
		if m.Record.EntityID != b {
			t.Fatalf("filter leaked record for entity %s", m.Record.EntityID)
		}
	}
}
