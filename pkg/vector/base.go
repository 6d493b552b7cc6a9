// Package vector defines the nearest-neighbor index capability used by the
// memory store, decoupling ranking from the concrete search backend.
//
// Two interchangeable implementations exist:
//   - flat: an in-process exact L2 index partitioned per owner, suited to
//     small per-owner corpora.
//   - remote: delegation to the durable store's similarity RPC.
//
// The store selects one at construction time and never branches on which
// variant is active.
package vector

import (
	"context"
	"errors"
)

// ErrDimensionMismatch indicates a vector whose dimension does not match
// the index configuration. Such vectors are rejected from indexing.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Candidate is a single nearest-neighbor result. Lower distance means
// more similar.
type Candidate struct {
	ID       int64
	Distance float64
}

// Index is the capability contract for nearest-neighbor search over
// per-owner vector partitions.
type Index interface {
	// AddVectors inserts vectors with their ids into the owner's partition.
	// It must be safe to call with an empty list.
	AddVectors(ctx context.Context, owner string, vectors [][]float64, ids []int64) error

	// SearchVectors returns up to k candidates ordered by ascending
	// distance. An owner with no indexed vectors yields an empty list,
	// never an error.
	SearchVectors(ctx context.Context, owner string, query []float64, k int) ([]Candidate, error)

	// DropOwner discards the owner's partition, if any. Implementations
	// whose backing data lives elsewhere may treat this as a no-op.
	// The store uses it to keep rehydration and deletion duplicate-free.
	DropOwner(ctx context.Context, owner string) error
}
