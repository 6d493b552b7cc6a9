package sqlite

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
)

// buildSetClause builds the SET clause for a partial update. Only fields
// with non-nil pointers participate. placeholder is the driver's parameter
// marker ("?" for sqlite/mysql).
func buildSetClause(updates *storage.FieldUpdates, placeholder string) (string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)

	set := func(column string, value interface{}) {
		sets = append(sets, column+" = "+placeholder)
		args = append(args, value)
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
		if encoded, err := json.Marshal(updates.Embedding); err == nil {
			set("embedding", string(encoded))
		}
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

// idPlaceholders renders an id batch as a placeholder list and args.
func idPlaceholders(ids []int64) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

// cosineSimilarity computes the cosine similarity of two vectors,
// returning 0 for zero-magnitude inputs.
func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// topMatches sorts matches by descending similarity and keeps the first k.
func topMatches(matches []storage.SimilarMatch, k int) []storage.SimilarMatch {
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches
}
