package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
)

// buildSetClause builds the SET clause for a partial update with numbered
// placeholders starting at $1. Only non-nil fields participate.
func buildSetClause(updates *storage.FieldUpdates) (string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)

	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if updates.Content != nil {
		set("content", *updates.Content)
	}
	if updates.Summary != nil {
		set("summary", *updates.Summary)
	}
	if updates.Importance != nil {
		set("importance", *updates.Importance)
	}
	if updates.Metadata != nil {
		if encoded, err := json.Marshal(updates.Metadata); err == nil {
			set("metadata", string(encoded))
		}
	}
	if updates.Embedding != nil {
		set("embedding", toVector(updates.Embedding))
	}
	if updates.AccessCount != nil {
		set("access_count", *updates.AccessCount)
	}
	if updates.SummaryCount != nil {
		set("summary_count", *updates.SummaryCount)
	}
	if updates.LastAccessedAt != nil {
		set("last_accessed_at", *updates.LastAccessedAt)
	}

	return strings.Join(sets, ", "), args
}

// idPlaceholders renders an id batch as numbered placeholders starting
// at the given index.
func idPlaceholders(ids []int64, start int) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

// toVector converts a float64 embedding to the pgvector wire type.
func toVector(embedding []float64) pgvector.Vector {
	values := make([]float32, len(embedding))
	for i, v := range embedding {
		values[i] = float32(v)
	}
	return pgvector.NewVector(values)
}

// fromVector converts a pgvector value back to float64.
func fromVector(v pgvector.Vector) []float64 {
	values := v.Slice()
	embedding := make([]float64, len(values))
	for i, f := range values {
		embedding[i] = float64(f)
	}
	return embedding
}
