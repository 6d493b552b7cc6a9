// Package storage defines the durable-store contract for memory records.
//
// The store is the system of record: raw text, embeddings, and scoring
// inputs live here, addressed by id within an owner partition. Three
// backends implement the contract (sqlite, postgres, mysql); the core
// engine only sees this interface.
package storage

import (
	"context"
	"time"
)

// Record is a durable memory record. All fields except ID are set by the
// caller on insert; ID is assigned by the backend.
type Record struct {
	// ID is the unique identifier within the owner partition.
	ID int64

	// OwnerID identifies the owner partition. No operation crosses it.
	OwnerID string

	// Content is the raw note text.
	Content string

	// Summary is the AI-generated reflective summary.
	Summary string

	// Embedding is the fixed-dimension vector for similarity search.
	Embedding []float64

	// Metadata holds structured attributes (topics, source, ...).
	Metadata map[string]interface{}

	// Importance is the base importance supplied at creation (>= 0).
	Importance float64

	// AccessCount counts read accesses. Monotonic non-decreasing.
	AccessCount int

	// SummaryCount counts inclusions in synthesized answers.
	SummaryCount int

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time

	// LastAccessedAt is the last access timestamp, never before CreatedAt.
	LastAccessedAt time.Time
}

// FieldUpdates is a partial update applied by id within an owner
// partition. Nil pointers leave the corresponding column untouched.
type FieldUpdates struct {
	Content        *string
	Summary        *string
	Importance     *float64
	Metadata       map[string]interface{}
	Embedding      []float64
	AccessCount    *int
	SummaryCount   *int
	LastAccessedAt *time.Time
}

// SimilarMatch is one result of the similarity RPC. Similarity is in
// [0, 1]; higher means more similar.
type SimilarMatch struct {
	ID         int64
	Similarity float64
}

// Store is the durable persistence contract consumed by the memory core.
type Store interface {
	// Insert persists a new record and assigns its ID.
	Insert(ctx context.Context, record *Record) error

	// UpdateFields applies a partial update to one record. Updating a
	// record that does not exist in the owner partition is not an error;
	// it affects zero rows.
	UpdateFields(ctx context.Context, id int64, owner string, updates *FieldUpdates) error

	// Delete removes a record by id within the owner partition and
	// reports whether a row was removed.
	Delete(ctx context.Context, id int64, owner string) (bool, error)

	// SelectByOwner returns every record in the owner partition.
	SelectByOwner(ctx context.Context, owner string) ([]*Record, error)

	// SelectByIDs returns the records matching the id batch within the
	// owner partition. Missing ids are skipped silently.
	SelectByIDs(ctx context.Context, owner string, ids []int64) ([]*Record, error)

	// SearchSimilar is the similarity RPC: nearest records to the query
	// vector within the owner partition, ordered by descending similarity.
	SearchSimilar(ctx context.Context, owner string, query []float64, k int) ([]SimilarMatch, error)

	// Close releases backend resources.
	Close() error
}
