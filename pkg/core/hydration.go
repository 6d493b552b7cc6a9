package core

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/cache"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/intelligence"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/vector"
)

// ownerPartition is one owner's hydrated working set: the record map and
// the rolling query history. The mutex guards both, plus mutation of
// individual record fields.
type ownerPartition struct {
	mu      sync.RWMutex
	records map[int64]*storage.Record
	history *intelligence.QueryHistory
}

// ownerEntry tracks one owner in the hydration manager. The ready channel
// is closed when hydration finishes; waiters observe err afterwards.
type ownerEntry struct {
	partition *ownerPartition
	elem      *list.Element
	ready     chan struct{}
	err       error
}

// hydrationManager guarantees that before any per-owner operation runs,
// that owner's records and vectors are present in the working set exactly
// once. Concurrent first touches for the same owner share a single load.
//
// The number of resident owners is bounded: hydrating a new owner beyond
// capacity evicts the least recently active other owner, dropping its
// records, query history, vector partition, and semantic-cache entries.
// Eviction is not deletion; the owner rehydrates on next touch.
type hydrationManager struct {
	repo      storage.Store
	index     vector.Index
	caches    *cache.Manager[SearchHit]
	dimension int
	capacity  int
	logger    *slog.Logger

	mu     sync.Mutex
	owners map[string]*ownerEntry
	// order holds owner ids, most recently active at the front.
	order *list.List
}

func newHydrationManager(repo storage.Store, index vector.Index, caches *cache.Manager[SearchHit], dimension, capacity int, logger *slog.Logger) *hydrationManager {
	if capacity <= 0 {
		capacity = 100
	}
	return &hydrationManager{
		repo:      repo,
		index:     index,
		caches:    caches,
		dimension: dimension,
		capacity:  capacity,
		logger:    logger,
		owners:    make(map[string]*ownerEntry),
		order:     list.New(),
	}
}

// Ensure returns the owner's hydrated partition, loading it on first
// touch. The owner is marked most recently active.
func (h *hydrationManager) Ensure(ctx context.Context, owner string) (*ownerPartition, error) {
	h.mu.Lock()
	if entry, ok := h.owners[owner]; ok {
		h.order.MoveToFront(entry.elem)
		h.mu.Unlock()
		<-entry.ready
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.partition, nil
	}

	entry := &ownerEntry{
		partition: &ownerPartition{
			records: make(map[int64]*storage.Record),
			history: intelligence.NewQueryHistory(),
		},
		ready: make(chan struct{}),
	}
	h.owners[owner] = entry
	entry.elem = h.order.PushFront(owner)
	h.evictOverCapacityLocked(ctx, owner)
	h.mu.Unlock()

	h.load(ctx, owner, entry)
	close(entry.ready)

	if entry.err != nil {
		h.mu.Lock()
		delete(h.owners, owner)
		h.order.Remove(entry.elem)
		h.mu.Unlock()
		return nil, entry.err
	}
	return entry.partition, nil
}

// load fills the partition from the durable store and bulk-inserts the
// vectors. Records whose embedding has the wrong dimension are kept out
// of the index but remain addressable.
func (h *hydrationManager) load(ctx context.Context, owner string, entry *ownerEntry) {
	records, err := h.repo.SelectByOwner(ctx, owner)
	if err != nil {
		entry.err = NewMemoryError("Hydrate", fmt.Errorf("%w: %w", ErrStorageOperation, err))
		return
	}
	if len(records) == 0 {
		h.logger.Debug("hydrated empty working set", "owner", owner)
		return
	}

	vectors := make([][]float64, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		entry.partition.records[rec.ID] = rec
		if len(rec.Embedding) == h.dimension {
			vectors = append(vectors, rec.Embedding)
			ids = append(ids, rec.ID)
		}
	}

	if err := h.index.AddVectors(ctx, owner, vectors, ids); err != nil {
		entry.err = NewMemoryError("Hydrate", err)
		return
	}
	h.logger.Info("hydrated working set", "owner", owner, "records", len(records), "indexed", len(ids))
}

// evictOverCapacityLocked evicts least-recently-active owners until the
// working set fits the capacity. The freshly touched owner and owners
// whose hydration is still in flight are never evicted. Caller holds mu.
func (h *hydrationManager) evictOverCapacityLocked(ctx context.Context, fresh string) {
	for elem := h.order.Back(); elem != nil && len(h.owners) > h.capacity; {
		prev := elem.Prev()
		owner := elem.Value.(string)
		if owner != fresh {
			entry := h.owners[owner]
			select {
			case <-entry.ready:
				delete(h.owners, owner)
				h.order.Remove(elem)
				h.evictCleanup(ctx, owner)
			default:
				// Hydration in flight; leave it alone.
			}
		}
		elem = prev
	}
}

// evictCleanup drops everything derived from the evicted owner: the
// vector partition and the owner's semantic-cache entries. The record
// map and history die with the entry.
func (h *hydrationManager) evictCleanup(ctx context.Context, owner string) {
	if err := h.index.DropOwner(ctx, owner); err != nil {
		h.logger.Warn("failed to drop vector partition on eviction", "owner", owner, "error", err)
	}
	h.caches.InvalidateOwnerSemantic(owner)
	h.logger.Info("evicted working set", "owner", owner)
}

// residentOwners returns the currently hydrated owners, most recently
// active first.
func (h *hydrationManager) residentOwners() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	owners := make([]string, 0, h.order.Len())
	for elem := h.order.Front(); elem != nil; elem = elem.Next() {
		owners = append(owners, elem.Value.(string))
	}
	return owners
}
