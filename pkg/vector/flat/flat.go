// Package flat provides an in-process exact nearest-neighbor index.
//
// Each owner gets an isolated partition searched by brute force over L2
// distances. Exact search keeps ranking deterministic and is fast enough
// for the small per-owner corpora this index targets.
package flat

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/vector"
)

// Index implements vector.Index with per-owner flat partitions.
type Index struct {
	dimension  int
	mu         sync.RWMutex
	partitions map[string]*partition
}

type partition struct {
	vectors [][]float64
	ids     []int64
}

// New creates a flat index for vectors of the given dimension.
func New(dimension int) *Index {
	return &Index{
		dimension:  dimension,
		partitions: make(map[string]*partition),
	}
}

// AddVectors appends vectors to the owner's partition. Vectors whose
// dimension does not match the index are rejected as a whole.
func (x *Index) AddVectors(ctx context.Context, owner string, vectors [][]float64, ids []int64) error {
	if len(vectors) == 0 {
		return nil
	}
	if len(vectors) != len(ids) {
		return fmt.Errorf("flat: %d vectors for %d ids", len(vectors), len(ids))
	}
	for _, v := range vectors {
		if len(v) != x.dimension {
			return fmt.Errorf("flat: got dimension %d, want %d: %w", len(v), x.dimension, vector.ErrDimensionMismatch)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	p, ok := x.partitions[owner]
	if !ok {
		p = &partition{}
		x.partitions[owner] = p
	}
	p.vectors = append(p.vectors, vectors...)
	p.ids = append(p.ids, ids...)
	return nil
}

// SearchVectors scans the owner's partition and returns the k nearest
// candidates by L2 distance. Unknown owners yield an empty result.
func (x *Index) SearchVectors(ctx context.Context, owner string, query []float64, k int) ([]vector.Candidate, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	p, ok := x.partitions[owner]
	if !ok || len(p.ids) == 0 || k <= 0 {
		return nil, nil
	}

	candidates := make([]vector.Candidate, 0, len(p.ids))
	for i, v := range p.vectors {
		candidates = append(candidates, vector.Candidate{
			ID:       p.ids[i],
			Distance: l2Distance(query, v),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})

	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// DropOwner discards the owner's partition.
func (x *Index) DropOwner(ctx context.Context, owner string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.partitions, owner)
	return nil
}

// Size returns the number of vectors indexed for an owner.
func (x *Index) Size(owner string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if p, ok := x.partitions[owner]; ok {
		return len(p.ids)
	}
	return 0
}

func l2Distance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
