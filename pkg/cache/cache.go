// Package cache provides the layered result caching for memory retrieval:
// a semantic cache of ranked query results and a privacy-safe metadata
// cache. Both are independently bounded LRU caches.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SemanticKey identifies one cached query result set.
type SemanticKey struct {
	OwnerID string
	Query   string
	TopK    int
}

// MetadataKey identifies one cached metadata entry.
type MetadataKey struct {
	OwnerID  string
	MemoryID int64
}

// Metadata is the allow-listed field subset admitted to the metadata
// cache. Raw content and embeddings have no representation here, so they
// can never be admitted regardless of caller discipline.
type Metadata struct {
	ID             int64
	OwnerID        string
	Importance     float64
	AccessCount    int
	LastAccessedAt time.Time
	State          string
}

// Manager holds the two caches. R is the ranked-result type stored in the
// semantic cache.
//
// Manager is safe for concurrent use; both underlying caches lock
// internally.
type Manager[R any] struct {
	semantic *lru.Cache[SemanticKey, []R]
	metadata *lru.Cache[MetadataKey, Metadata]
}

// NewManager creates a cache manager with the given bounds. Defaults of
// 500 semantic entries and 5000 metadata entries apply when a bound is
// not positive.
func NewManager[R any](semanticLimit, metadataLimit int) (*Manager[R], error) {
	if semanticLimit <= 0 {
		semanticLimit = 500
	}
	if metadataLimit <= 0 {
		metadataLimit = 5000
	}

	semantic, err := lru.New[SemanticKey, []R](semanticLimit)
	if err != nil {
		return nil, err
	}
	metadata, err := lru.New[MetadataKey, Metadata](metadataLimit)
	if err != nil {
		return nil, err
	}

	return &Manager[R]{semantic: semantic, metadata: metadata}, nil
}

// GetSemantic returns the cached ranked results for (owner, query, topK).
func (m *Manager[R]) GetSemantic(owner, query string, topK int) ([]R, bool) {
	return m.semantic.Get(SemanticKey{OwnerID: owner, Query: query, TopK: topK})
}

// SetSemantic stores ranked results under (owner, query, topK).
func (m *Manager[R]) SetSemantic(owner, query string, topK int, results []R) {
	m.semantic.Add(SemanticKey{OwnerID: owner, Query: query, TopK: topK}, results)
}

// InvalidateOwnerSemantic drops every semantic entry belonging to the
// owner. Entries for other owners are untouched.
func (m *Manager[R]) InvalidateOwnerSemantic(owner string) {
	for _, key := range m.semantic.Keys() {
		if key.OwnerID == owner {
			m.semantic.Remove(key)
		}
	}
}

// GetMetadata returns the cached metadata for (owner, id).
func (m *Manager[R]) GetMetadata(owner string, id int64) (Metadata, bool) {
	return m.metadata.Get(MetadataKey{OwnerID: owner, MemoryID: id})
}

// SetMetadata stores a metadata entry. The entry type admits only the
// allow-listed fields; content never reaches this cache.
func (m *Manager[R]) SetMetadata(owner string, id int64, md Metadata) {
	m.metadata.Add(MetadataKey{OwnerID: owner, MemoryID: id}, md)
}

// InvalidateMetadata drops one metadata entry.
func (m *Manager[R]) InvalidateMetadata(owner string, id int64) {
	m.metadata.Remove(MetadataKey{OwnerID: owner, MemoryID: id})
}

// SemanticLen reports the number of semantic entries, for observability.
func (m *Manager[R]) SemanticLen() int {
	return m.semantic.Len()
}
