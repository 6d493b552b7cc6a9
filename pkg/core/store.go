package core

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/cache"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/intelligence"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/vector"
)

const (
	// overFetchFactor is how many candidates are requested from the
	// vector index per requested result, to allow threshold filtering.
	overFetchFactor = 3

	// noiseThreshold is the L2 distance beyond which a candidate is
	// considered noise and discarded.
	noiseThreshold = 0.45

	// recencyHalfLifeDays controls how fast the recency score fades.
	recencyHalfLifeDays = 30.0

	// temporalRecencyWeight applies when the query shows temporal intent.
	temporalRecencyWeight = 0.8

	// neutralRecencyWeight applies to queries without temporal intent.
	neutralRecencyWeight = 0.5
)

// temporalKeywords signal that the query cares about recency.
var temporalKeywords = []string{
	"recent", "newest", "latest", "today", "yesterday", "week", "month",
}

// Store orchestrates memory persistence, hydration, ranking, and
// caching for all owners. It enforces per-owner isolation: no operation
// returns or mutates a record across owner partitions.
//
// Store is safe for concurrent use.
type Store struct {
	repo      storage.Store
	index     vector.Index
	caches    *cache.Manager[SearchHit]
	hydration *hydrationManager
	retention *intelligence.RetentionModel
	scorer    *intelligence.ImportanceScorer
	dimension int
	logger    *slog.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// NewStore creates a memory store with injected dependencies. There is
// no process-wide default instance; callers own the lifecycle.
func NewStore(cfg *Config, repo storage.Store, index vector.Index, logger *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	caches, err := cache.NewManager[SearchHit](cfg.SemanticCacheSize, cfg.MetadataCacheSize)
	if err != nil {
		return nil, NewMemoryError("NewStore", err)
	}

	return &Store{
		repo:      repo,
		index:     index,
		caches:    caches,
		hydration: newHydrationManager(repo, index, caches, cfg.Dimension, cfg.MaxActiveOwners, logger),
		retention: intelligence.NewRetentionModel(),
		scorer:    intelligence.NewImportanceScorer(),
		dimension: cfg.Dimension,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Add persists a new memory for the owner, indexes its vector, and
// invalidates the owner's cached query results.
//
// Empty content is rejected before any side effect. The embedding must
// match the store's configured dimension.
func (s *Store) Add(ctx context.Context, owner, content string, opts ...AddOption) (*MemoryRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, NewMemoryError("Add", ErrEmptyContent)
	}

	options := newAddOptions(opts...)
	if len(options.Embedding) != s.dimension {
		return nil, NewMemoryError("Add", ErrDimensionMismatch)
	}
	if options.Importance <= 0 {
		options.Importance = 1.0
	}

	part, err := s.hydration.Ensure(ctx, owner)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := &storage.Record{
		OwnerID:        owner,
		Content:        content,
		Summary:        options.Summary,
		Embedding:      options.Embedding,
		Metadata:       options.Metadata,
		Importance:     options.Importance,
		SummaryCount:   options.SummaryCount,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	// The initial insert is the critical path; its failure surfaces.
	if err := s.repo.Insert(ctx, rec); err != nil {
		return nil, NewMemoryError("Add", fmt.Errorf("%w: %w", ErrStorageOperation, err))
	}
	if err := s.index.AddVectors(ctx, owner, [][]float64{rec.Embedding}, []int64{rec.ID}); err != nil {
		// Keep id-reachability and indexing consistent: roll the insert back.
		if _, delErr := s.repo.Delete(ctx, rec.ID, owner); delErr != nil {
			s.logger.Error("rollback after index failure also failed", "owner", owner, "id", rec.ID, "error", delErr)
		}
		return nil, NewMemoryError("Add", err)
	}

	part.mu.Lock()
	part.records[rec.ID] = rec
	entry := s.metadataEntry(rec)
	memory := toMemoryRecord(rec, s.classify(rec, now))
	part.mu.Unlock()

	s.caches.InvalidateOwnerSemantic(owner)
	s.caches.SetMetadata(owner, rec.ID, entry)
	return &memory, nil
}

// Search runs the hybrid ranking pipeline for the owner's query and
// returns up to topK hits, most relevant first.
//
// An empty query short-circuits before any index access and returns an
// empty result set. A repeated (owner, query, topK) triple with
// unchanged data is served from the semantic cache without re-ranking
// or access-metric updates.
func (s *Store) Search(ctx context.Context, owner, query string, queryEmbedding []float64, topK int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return []SearchHit{}, nil
	}
	if topK <= 0 {
		topK = 5
	}

	part, err := s.hydration.Ensure(ctx, owner)
	if err != nil {
		return nil, err
	}

	// The query seeds reuse scoring even when the result comes from
	// cache, so repeated queries strengthen the memories they match.
	part.mu.Lock()
	part.history.Record(queryEmbedding)
	part.mu.Unlock()

	if cached, ok := s.caches.GetSemantic(owner, query, topK); ok {
		s.logger.Debug("semantic cache hit", "owner", owner, "top_k", topK)
		return cached, nil
	}

	candidates, err := s.index.SearchVectors(ctx, owner, queryEmbedding, topK*overFetchFactor)
	if err != nil {
		// A broken index degrades to an empty result set.
		s.logger.Warn("vector search failed", "owner", owner, "error", err)
		return []SearchHit{}, nil
	}

	survivors := candidates[:0]
	for _, c := range candidates {
		if c.Distance <= noiseThreshold {
			survivors = append(survivors, c)
		}
	}
	if len(survivors) == 0 {
		s.caches.SetSemantic(owner, query, topK, []SearchHit{})
		return []SearchHit{}, nil
	}

	if err := s.resolveMissing(ctx, owner, part, survivors); err != nil {
		return nil, err
	}

	scored := s.scoreCandidates(part, query, survivors)
	if len(scored) == 0 {
		s.caches.SetSemantic(owner, query, topK, []SearchHit{})
		return []SearchHit{}, nil
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	maxScore := scored[0].score
	if len(scored) > topK {
		scored = scored[:topK]
	}

	s.applyAccessUpdates(ctx, owner, part, scored)

	hits := make([]SearchHit, len(scored))
	part.mu.RLock()
	for i, sc := range scored {
		hits[i] = SearchHit{
			MemoryRecord:        toMemoryRecord(sc.rec, s.retention.TransitionOnAccess(sc.preState)),
			Relevance:           round3(math.Min(1.0, sc.score/maxScore)),
			EffectiveImportance: sc.effImp,
		}
	}
	part.mu.RUnlock()

	// The metric updates invalidated the owner's semantic entries; the
	// final annotated list is cached afterwards so the next identical
	// query is a pure cache hit.
	s.caches.SetSemantic(owner, query, topK, hits)
	return hits, nil
}

// Get returns one memory by id within the owner partition, falling back
// to a by-id durable-store lookup for records not yet in the working
// set. Reading through Get counts as an access: the memory's metrics
// advance and a fading memory comes back resurfaced, exactly as it
// would through Search.
func (s *Store) Get(ctx context.Context, owner string, id int64) (*MemoryRecord, error) {
	part, err := s.hydration.Ensure(ctx, owner)
	if err != nil {
		return nil, err
	}

	part.mu.RLock()
	rec, ok := part.records[id]
	part.mu.RUnlock()

	if !ok {
		records, err := s.repo.SelectByIDs(ctx, owner, []int64{id})
		if err != nil {
			return nil, NewMemoryError("Get", fmt.Errorf("%w: %w", ErrStorageOperation, err))
		}
		if len(records) == 0 {
			return nil, NewMemoryError("Get", ErrNotFound)
		}
		rec = records[0]
		part.mu.Lock()
		if existing, raced := part.records[id]; raced {
			rec = existing
		} else {
			part.records[id] = rec
		}
		part.mu.Unlock()
	}

	now := s.now()
	part.mu.Lock()
	preState := s.classify(rec, now)
	rec.AccessCount++
	rec.LastAccessedAt = now
	count := rec.AccessCount
	entry := s.metadataEntry(rec)
	memory := toMemoryRecord(rec, s.retention.TransitionOnAccess(preState))
	part.mu.Unlock()

	accessedAt := now
	err = s.repo.UpdateFields(ctx, id, owner, &storage.FieldUpdates{
		AccessCount:    &count,
		LastAccessedAt: &accessedAt,
	})
	if err != nil {
		// Secondary path: the in-memory state still advances.
		s.logger.Warn("access metric persistence failed", "owner", owner, "id", id, "error", err)
	}

	s.caches.SetMetadata(owner, id, entry)
	s.caches.InvalidateOwnerSemantic(owner)
	return &memory, nil
}

// List returns every memory in the owner partition, newest first.
func (s *Store) List(ctx context.Context, owner string) ([]MemoryRecord, error) {
	part, err := s.hydration.Ensure(ctx, owner)
	if err != nil {
		return nil, err
	}

	now := s.now()
	part.mu.RLock()
	memories := make([]MemoryRecord, 0, len(part.records))
	for _, rec := range part.records {
		memories = append(memories, toMemoryRecord(rec, s.classify(rec, now)))
	}
	part.mu.RUnlock()

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.After(memories[j].CreatedAt)
	})
	return memories, nil
}

// Update applies a partial update to one memory. An id that does not
// exist in the owner's partition reports ErrNotFound; an id belonging
// to a different owner is indistinguishable from that.
func (s *Store) Update(ctx context.Context, owner string, id int64, updates *storage.FieldUpdates) (*MemoryRecord, error) {
	part, err := s.hydration.Ensure(ctx, owner)
	if err != nil {
		return nil, err
	}

	part.mu.RLock()
	rec, ok := part.records[id]
	part.mu.RUnlock()
	if !ok {
		return nil, NewMemoryError("Update", ErrNotFound)
	}
	if updates.Embedding != nil && len(updates.Embedding) != s.dimension {
		return nil, NewMemoryError("Update", ErrDimensionMismatch)
	}

	if err := s.repo.UpdateFields(ctx, id, owner, updates); err != nil {
		return nil, NewMemoryError("Update", fmt.Errorf("%w: %w", ErrStorageOperation, err))
	}

	part.mu.Lock()
	applyFieldUpdates(rec, updates)
	entry := s.metadataEntry(rec)
	memory := toMemoryRecord(rec, s.classify(rec, s.now()))
	part.mu.Unlock()

	if updates.Embedding != nil {
		if err := s.rebuildOwnerVectors(ctx, owner, part); err != nil {
			s.logger.Warn("vector rebuild after update failed", "owner", owner, "id", id, "error", err)
		}
	}

	s.caches.InvalidateOwnerSemantic(owner)
	s.caches.SetMetadata(owner, id, entry)
	return &memory, nil
}

// Delete removes a memory by id within the owner partition and reports
// whether anything was removed. Deleting an id owned by someone else
// reports false, same as a nonexistent id.
func (s *Store) Delete(ctx context.Context, owner string, id int64) (bool, error) {
	part, err := s.hydration.Ensure(ctx, owner)
	if err != nil {
		return false, err
	}

	removed, err := s.repo.Delete(ctx, id, owner)
	if err != nil {
		return false, NewMemoryError("Delete", fmt.Errorf("%w: %w", ErrStorageOperation, err))
	}
	if !removed {
		return false, nil
	}

	part.mu.Lock()
	delete(part.records, id)
	part.mu.Unlock()

	// The flat index has no point-removal primitive; rebuild the owner's
	// partition from the surviving records so deleted vectors are never
	// searchable again.
	if err := s.rebuildOwnerVectors(ctx, owner, part); err != nil {
		s.logger.Warn("vector rebuild after delete failed", "owner", owner, "id", id, "error", err)
	}

	s.caches.InvalidateOwnerSemantic(owner)
	s.caches.InvalidateMetadata(owner, id)
	return true, nil
}

// IncrementSummaryCounts bumps the summary-usage counter for each of the
// owner's given memories. Persistence failures are logged and tolerated;
// the in-memory state still advances.
func (s *Store) IncrementSummaryCounts(ctx context.Context, owner string, ids []int64) error {
	part, err := s.hydration.Ensure(ctx, owner)
	if err != nil {
		return err
	}

	for _, id := range ids {
		part.mu.Lock()
		rec, ok := part.records[id]
		if !ok {
			part.mu.Unlock()
			continue
		}
		rec.SummaryCount++
		count := rec.SummaryCount
		entry := s.metadataEntry(rec)
		part.mu.Unlock()

		if err := s.repo.UpdateFields(ctx, id, owner, &storage.FieldUpdates{SummaryCount: &count}); err != nil {
			s.logger.Warn("summary count persistence failed", "owner", owner, "id", id, "error", err)
		}
		s.caches.SetMetadata(owner, id, entry)
	}

	s.caches.InvalidateOwnerSemantic(owner)
	return nil
}

// CachedResults returns the owner's cached ranked results for the exact
// (query, topK) pair, if present. It performs no hydration, ranking, or
// metric updates; the Brain uses it as a fast path that avoids the AI
// service entirely.
func (s *Store) CachedResults(owner, query string, topK int) ([]SearchHit, bool) {
	return s.caches.GetSemantic(owner, query, topK)
}

// Close releases the durable-store resources.
func (s *Store) Close() error {
	return s.repo.Close()
}

// scoredCandidate carries one candidate through ranking.
type scoredCandidate struct {
	rec      *storage.Record
	score    float64
	effImp   float64
	preState intelligence.State
}

// resolveMissing fetches candidate records absent from the partition via
// one batched lookup. Unresolved ids are dropped later by scoring.
func (s *Store) resolveMissing(ctx context.Context, owner string, part *ownerPartition, candidates []vector.Candidate) error {
	part.mu.RLock()
	var missing []int64
	for _, c := range candidates {
		if _, ok := part.records[c.ID]; !ok {
			missing = append(missing, c.ID)
		}
	}
	part.mu.RUnlock()
	if len(missing) == 0 {
		return nil
	}

	records, err := s.repo.SelectByIDs(ctx, owner, missing)
	if err != nil {
		return NewMemoryError("Search", fmt.Errorf("%w: %w", ErrStorageOperation, err))
	}

	part.mu.Lock()
	for _, rec := range records {
		part.records[rec.ID] = rec
	}
	part.mu.Unlock()
	return nil
}

// scoreCandidates computes the master score for every resolvable
// candidate:
//
//	semantic_sim = 1 / (1 + distance)
//	recency      = 1 / (1 + age_days/30)
//	master       = semantic_sim^1.5 * (1 + 0.2*eff_importance)
//	               * (1 + recency_weight*recency) * (1 + 0.15*(1-retention))
//
// Queries with temporal intent weight recency at 0.8 instead of 0.5.
func (s *Store) scoreCandidates(part *ownerPartition, query string, candidates []vector.Candidate) []scoredCandidate {
	recencyWeight := neutralRecencyWeight
	if hasTemporalIntent(query) {
		recencyWeight = temporalRecencyWeight
	}

	now := s.now()
	part.mu.RLock()
	defer part.mu.RUnlock()

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		rec, ok := part.records[c.ID]
		if !ok {
			continue
		}

		semanticSim := 1.0 / (1.0 + c.Distance)
		effImp := s.scorer.Effective(rec.Importance, rec.AccessCount, rec.SummaryCount, rec.Embedding, part.history)
		ageDays := math.Max(0, now.Sub(rec.CreatedAt).Hours()/24.0)
		recency := 1.0 / (1.0 + ageDays/recencyHalfLifeDays)
		retention := s.retention.Score(rec.Importance, rec.AccessCount, rec.CreatedAt, rec.LastAccessedAt, now)

		score := math.Pow(semanticSim, 1.5) *
			(1.0 + 0.2*effImp) *
			(1.0 + recencyWeight*recency) *
			(1.0 + 0.15*(1.0-retention))

		scored = append(scored, scoredCandidate{
			rec:      rec,
			score:    score,
			effImp:   effImp,
			preState: s.retention.Classify(retention),
		})
	}
	return scored
}

// applyAccessUpdates runs the access-metric update for every kept result
// concurrently (the records are disjoint) and awaits them all. Each
// update persists the new metrics, refreshes the metadata cache, and the
// batch invalidates the owner's semantic entries.
func (s *Store) applyAccessUpdates(ctx context.Context, owner string, part *ownerPartition, kept []scoredCandidate) {
	now := s.now()

	var wg sync.WaitGroup
	for i := range kept {
		rec := kept[i].rec
		wg.Add(1)
		go func() {
			defer wg.Done()

			part.mu.Lock()
			rec.AccessCount++
			rec.LastAccessedAt = now
			count := rec.AccessCount
			entry := s.metadataEntry(rec)
			part.mu.Unlock()

			accessedAt := now
			err := s.repo.UpdateFields(ctx, rec.ID, owner, &storage.FieldUpdates{
				AccessCount:    &count,
				LastAccessedAt: &accessedAt,
			})
			if err != nil {
				// Secondary path: the in-memory state still advances.
				s.logger.Warn("access metric persistence failed", "owner", owner, "id", rec.ID, "error", err)
			}
			s.caches.SetMetadata(owner, rec.ID, entry)
		}()
	}
	wg.Wait()

	s.caches.InvalidateOwnerSemantic(owner)
}

// rebuildOwnerVectors drops the owner's index partition and re-adds the
// vectors of every surviving record with the expected dimension.
func (s *Store) rebuildOwnerVectors(ctx context.Context, owner string, part *ownerPartition) error {
	if err := s.index.DropOwner(ctx, owner); err != nil {
		return err
	}

	part.mu.RLock()
	vectors := make([][]float64, 0, len(part.records))
	ids := make([]int64, 0, len(part.records))
	for _, rec := range part.records {
		if len(rec.Embedding) == s.dimension {
			vectors = append(vectors, rec.Embedding)
			ids = append(ids, rec.ID)
		}
	}
	part.mu.RUnlock()

	return s.index.AddVectors(ctx, owner, vectors, ids)
}

// metadataEntry builds the record's metadata-cache entry. Only the
// allow-listed field subset crosses into the cache; content and
// embeddings never do. Callers must hold the owning partition's lock so
// the snapshot is consistent; the cache write itself happens outside it.
func (s *Store) metadataEntry(rec *storage.Record) cache.Metadata {
	return cache.Metadata{
		ID:             rec.ID,
		OwnerID:        rec.OwnerID,
		Importance:     rec.Importance,
		AccessCount:    rec.AccessCount,
		LastAccessedAt: rec.LastAccessedAt,
		State:          string(s.classify(rec, s.now())),
	}
}

// classify computes the record's resting state at instant now.
func (s *Store) classify(rec *storage.Record, now time.Time) intelligence.State {
	retention := s.retention.Score(rec.Importance, rec.AccessCount, rec.CreatedAt, rec.LastAccessedAt, now)
	return s.retention.Classify(retention)
}

// applyFieldUpdates mirrors a partial update onto the in-memory record.
func applyFieldUpdates(rec *storage.Record, updates *storage.FieldUpdates) {
	if updates.Content != nil {
		rec.Content = *updates.Content
	}
	if updates.Summary != nil {
		rec.Summary = *updates.Summary
	}
	if updates.Importance != nil {
		rec.Importance = *updates.Importance
	}
	if updates.Metadata != nil {
		rec.Metadata = updates.Metadata
	}
	if updates.Embedding != nil {
		rec.Embedding = updates.Embedding
	}
	if updates.AccessCount != nil {
		rec.AccessCount = *updates.AccessCount
	}
	if updates.SummaryCount != nil {
		rec.SummaryCount = *updates.SummaryCount
	}
	if updates.LastAccessedAt != nil {
		rec.LastAccessedAt = *updates.LastAccessedAt
	}
}

// hasTemporalIntent reports whether the query contains a temporal
// keyword, case-insensitively.
func hasTemporalIntent(query string) bool {
	lowered := strings.ToLower(query)
	for _, keyword := range temporalKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// round3 rounds to 3 decimal places.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
