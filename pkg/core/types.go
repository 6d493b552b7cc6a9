package core

import (
	"time"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/intelligence"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
)

// MemoryRecord is one stored note as exposed to callers.
//
// State is derived, never persisted: it is recomputed from the retention
// score on every read. Embeddings stay internal to the engine and are not
// part of the exposed record.
type MemoryRecord struct {
	// ID is the unique identifier within the owner partition.
	ID int64 `json:"id"`

	// OwnerID identifies the owner partition.
	OwnerID string `json:"owner_id"`

	// Content is the raw note text.
	Content string `json:"content"`

	// Summary is the reflective summary generated at upload.
	Summary string `json:"summary"`

	// Metadata holds structured attributes (topics, source, ...).
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Importance is the stored base importance.
	Importance float64 `json:"importance"`

	// AccessCount counts read accesses.
	AccessCount int `json:"access_count"`

	// SummaryCount counts inclusions in synthesized answers.
	SummaryCount int `json:"summary_count"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessedAt is the last access timestamp.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// State is the derived lifecycle state at read time.
	State intelligence.State `json:"memory_state"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	MemoryRecord

	// Relevance is the master score normalized against the best candidate
	// in the same result set, in [0, 1], rounded to 3 decimals. The raw
	// score is never exposed.
	Relevance float64 `json:"relevance"`

	// EffectiveImportance is the normalized importance used for ranking,
	// distinct from the stored base importance.
	EffectiveImportance float64 `json:"effective_importance"`
}

// QueryAnswer is the result of a Brain query: the ranked hits plus the
// optional synthesized reflection over them.
type QueryAnswer struct {
	// Query is the original query text.
	Query string `json:"query"`

	// RefinedQuery is the query actually searched, after refinement.
	// Equal to Query when refinement was skipped or degraded.
	RefinedQuery string `json:"refined_query"`

	// Hits are the ranked results.
	Hits []SearchHit `json:"hits"`

	// Answer is the synthesized reflection, or a placeholder message when
	// synthesis was skipped, the query was empty, or nothing matched.
	Answer string `json:"answer,omitempty"`
}

// toMemoryRecord converts a storage record to the exposed form with the
// given derived state.
func toMemoryRecord(rec *storage.Record, state intelligence.State) MemoryRecord {
	return MemoryRecord{
		ID:             rec.ID,
		OwnerID:        rec.OwnerID,
		Content:        rec.Content,
		Summary:        rec.Summary,
		Metadata:       rec.Metadata,
		Importance:     rec.Importance,
		AccessCount:    rec.AccessCount,
		SummaryCount:   rec.SummaryCount,
		CreatedAt:      rec.CreatedAt,
		LastAccessedAt: rec.LastAccessedAt,
		State:          state,
	}
}
