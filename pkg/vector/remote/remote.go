// Package remote implements the vector index by delegation to the durable
// store's similarity RPC. Vectors are already persisted alongside their
// records, so indexing is a no-op and search translates similarity scores
// to distances.
package remote

import (
	"context"
	"log/slog"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/vector"
)

// Searcher is the slice of the durable store the remote index needs.
type Searcher interface {
	SearchSimilar(ctx context.Context, owner string, query []float64, k int) ([]storage.SimilarMatch, error)
}

// Index implements vector.Index on top of a similarity-search RPC.
type Index struct {
	searcher Searcher
	logger   *slog.Logger
}

// New creates a remote index over the given searcher.
func New(searcher Searcher, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{searcher: searcher, logger: logger}
}

// AddVectors is a no-op: the durable store already holds the vectors from
// the record insert.
func (x *Index) AddVectors(ctx context.Context, owner string, vectors [][]float64, ids []int64) error {
	return nil
}

// SearchVectors calls the similarity RPC and converts each similarity to
// a distance via distance = 1 - similarity. RPC failures degrade to an
// empty candidate set rather than an error.
func (x *Index) SearchVectors(ctx context.Context, owner string, query []float64, k int) ([]vector.Candidate, error) {
	matches, err := x.searcher.SearchSimilar(ctx, owner, query, k)
	if err != nil {
		x.logger.Error("similarity rpc failed", "owner_id", owner, "error", err)
		return nil, nil
	}

	candidates := make([]vector.Candidate, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, vector.Candidate{
			ID:       m.ID,
			Distance: 1.0 - m.Similarity,
		})
	}
	return candidates, nil
}

// DropOwner is a no-op: partition state lives in the durable store.
func (x *Index) DropOwner(ctx context.Context, owner string) error {
	return nil
}
