package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ivfIndex is the approximate implementation: records are partitioned into
// inverted lists around k-means centroids and a query only scans the nProbe
// nearest lists. Until the index holds trainThreshold records it behaves as
// an exact scan, trading latency for correctness rather than refusing the
// query.
type ivfIndex struct {
	mu    sync.RWMutex
	dim   int
	lists int
	// nProbe lists are scanned per query.
	nProbe         int
	trainThreshold int

	records   []Record
	centroids [][]float32
	buckets   [][]Record
}

type IVFConfig struct {
	Dim            int
	Lists          int
	NProbe         int
	TrainThreshold int
}

func NewIVF(cfg IVFConfig) Index {
	if cfg.Lists < 1 {
		cfg.Lists = 100
	}
	if cfg.NProbe < 1 {
		cfg.NProbe = 8
	}
	if cfg.NProbe > cfg.Lists {
		cfg.NProbe = cfg.Lists
	}
	if cfg.TrainThreshold < cfg.Lists {
		cfg.TrainThreshold = cfg.Lists * 4
	}
	return &ivfIndex{
		dim:            cfg.Dim,
		lists:          cfg.Lists,
		nProbe:         cfg.NProbe,
		trainThreshold: cfg.TrainThreshold,
	}
}

func (x *ivfIndex) Insert(ctx context.Context, rec Record) error {
	if len(rec.Vector) != x.dim {
		return fmt.Errorf("vector dimension mismatch: want=%d got=%d", x.dim, len(rec.Vector))
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.records = append(x.records, rec)
	if x.trained() {
		c := x.nearestCentroids(rec.Vector, 1)[0]
		x.buckets[c] = append(x.buckets[c], rec)
		return nil
	}
	if len(x.records) >= x.trainThreshold {
		x.train()
	}
	return nil
}

func (x *ivfIndex) Search(ctx context.Context, query []float32, k int, entityID *uuid.UUID) ([]Match, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("query dimension mismatch: want=%d got=%d", x.dim, len(query))
	}
	if k < 1 {
		return nil, nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.trained() {
		// Under-populated: exact scan.
		return scanTopK(x.records, query, k, entityID), nil
	}

	candidates := make([]Record, 0, k*x.nProbe)
	for _, c := range x.nearestCentroids(query, x.nProbe) {
		candidates = append(candidates, x.buckets[c]...)
	}
	return scanTopK(candidates, query, k, entityID), nil
}

func (x *ivfIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

func (x *ivfIndex) trained() bool { return len(x.centroids) > 0 }

// train builds centroids over the current records and assigns every record
// to its inverted list. Called once, under the write lock, when the record
// count crosses the threshold.
func (x *ivfIndex) train() {
	k := x.lists
	if k > len(x.records) {
		k = len(x.records)
	}
	vecs := make([][]float32, len(x.records))
	for i, r := range x.records {
		vecs[i] = r.Vector
	}
	x.centroids = kmeans(vecs, k, 10)
	x.buckets = make([][]Record, len(x.centroids))
	for _, rec := range x.records {
		c := x.nearestCentroids(rec.Vector, 1)[0]
		x.buckets[c] = append(x.buckets[c], rec)
	}
}

func (x *ivfIndex) nearestCentroids(v []float32, n int) []int {
	type scored struct {
		idx   int
		score float64
	}
	all := make([]scored, len(x.centroids))
	for i, c := range x.centroids {
		all[i] = scored{idx: i, score: CosineSimilarity(v, c)}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })
	if n > len(all) {
		n = len(all)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].idx
	}
	return out
}

// kmeans clusters vectors by cosine similarity. Seeding is deterministic
// k-means++: start from the first vector, then repeatedly take the vector
// farthest from every chosen centroid.
func kmeans(vecs [][]float32, k, iterations int) [][]float32 {
	if len(vecs) == 0 || k < 1 {
		return nil
	}
	if k > len(vecs) {
		k = len(vecs)
	}

	centroids := make([][]float32, 0, k)
	centroids = append(centroids, vecs[0])
	for len(centroids) < k {
		bestIdx := 0
		bestDist := -1.0
		for i := range vecs {
			d := 1.0
			for _, c := range centroids {
				if dist := 1.0 - CosineSimilarity(vecs[i], c); dist < d {
					d = dist
				}
			}
			if d > bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		centroids = append(centroids, vecs[bestIdx])
	}

	assign := make([]int, len(vecs))
	for iter := 0; iter < iterations; iter++ {
		changed := false
		for i, v := range vecs {
			best := 0
			bestScore := -1.0
			for c := range centroids {
				if s := CosineSimilarity(v, centroids[c]); s > bestScore {
					bestScore = s
					best = c
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, len(vecs[0]))
		}
		for i, v := range vecs {
			c := assign[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += float64(x)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			mean := make([]float32, len(sums[c]))
			for d := range sums[c] {
				mean[d] = float32(sums[c][d] / float64(counts[c]))
			}
			centroids[c] = mean
		}
	}
	return centroids
}
