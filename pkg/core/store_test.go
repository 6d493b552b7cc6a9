package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/intelligence"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/vector/flat"
)

// fakeRepo is an in-memory durable store for tests.
type fakeRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*storage.Record
	loads   map[string]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records: make(map[int64]*storage.Record),
		loads:   make(map[string]int),
	}
}

// OwnerLoads reports how many SelectByOwner calls the owner received.
func (r *fakeRepo) OwnerLoads(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads[owner]
}

func cloneRecord(rec *storage.Record) *storage.Record {
	clone := *rec
	return &clone
}

func (r *fakeRepo) Insert(_ context.Context, rec *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rec.ID = r.nextID
	r.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (r *fakeRepo) UpdateFields(_ context.Context, id int64, owner string, updates *storage.FieldUpdates) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok && rec.OwnerID == owner {
		applyFieldUpdates(rec, updates)
	}
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id int64, owner string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok && rec.OwnerID == owner {
		delete(r.records, id)
		return true, nil
	}
	return false, nil
}

func (r *fakeRepo) SelectByOwner(_ context.Context, owner string) ([]*storage.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads[owner]++
	var out []*storage.Record
	for _, rec := range r.records {
		if rec.OwnerID == owner {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (r *fakeRepo) SelectByIDs(_ context.Context, owner string, ids []int64) ([]*storage.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*storage.Record
	for _, id := range ids {
		if rec, ok := r.records[id]; ok && rec.OwnerID == owner {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (r *fakeRepo) SearchSimilar(_ context.Context, owner string, query []float64, k int) ([]storage.SimilarMatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []storage.SimilarMatch
	for _, rec := range r.records {
		if rec.OwnerID != owner {
			continue
		}
		sum := 0.0
		for i := range query {
			if i < len(rec.Embedding) {
				d := query[i] - rec.Embedding[i]
				sum += d * d
			}
		}
		out = append(out, storage.SimilarMatch{ID: rec.ID, Similarity: 1.0 - math.Sqrt(sum)})
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (r *fakeRepo) Close() error { return nil }

func newTestStore(t *testing.T, capacity int) (*Store, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	cfg := &Config{
		Dimension:       3,
		MaxActiveOwners: capacity,
		Storage:         StorageConfig{Provider: "sqlite"},
	}
	store, err := NewStore(cfg, repo, flat.New(3), nil)
	require.NoError(t, err)
	return store, repo
}

func atTime(store *Store, at time.Time) {
	store.now = func() time.Time { return at }
}

func TestSearchNeverCrossesOwners(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	emb := []float64{1, 0, 0}
	_, err := store.Add(ctx, "alice", "alice note", WithEmbedding(emb))
	require.NoError(t, err)
	_, err = store.Add(ctx, "bob", "bob note", WithEmbedding(emb))
	require.NoError(t, err)

	hits, err := store.Search(ctx, "alice", "note", emb, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alice", hits[0].OwnerID)
	assert.Equal(t, "alice note", hits[0].Content)
}

func TestSearchMissThenHitIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	emb := []float64{1, 0, 0}
	rec, err := store.Add(ctx, "alice", "a note", WithEmbedding(emb))
	require.NoError(t, err)

	first, err := store.Search(ctx, "alice", "a query", emb, 5)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, first[0].AccessCount)

	second, err := store.Search(ctx, "alice", "a query", emb, 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The cache hit skipped metric updates.
	all, err := store.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rec.ID, all[0].ID)
	assert.Equal(t, 1, all[0].AccessCount)
}

func TestAddInvalidatesOnlyOwnOwnersCache(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	emb := []float64{1, 0, 0}
	_, err := store.Add(ctx, "alice", "alpha", WithEmbedding(emb))
	require.NoError(t, err)
	_, err = store.Add(ctx, "bob", "beta", WithEmbedding(emb))
	require.NoError(t, err)

	_, err = store.Search(ctx, "alice", "q", emb, 5)
	require.NoError(t, err)
	_, err = store.Search(ctx, "bob", "q", emb, 5)
	require.NoError(t, err)

	_, ok := store.CachedResults("alice", "q", 5)
	require.True(t, ok)

	_, err = store.Add(ctx, "alice", "another", WithEmbedding(emb))
	require.NoError(t, err)

	_, ok = store.CachedResults("alice", "q", 5)
	assert.False(t, ok, "alice's cached results must be invalidated by her add")
	_, ok = store.CachedResults("bob", "q", 5)
	assert.True(t, ok, "bob's cached results must survive alice's add")
}

func TestFadingMemoryResurfacesOnce(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	atTime(store, t0)

	emb := []float64{1, 0, 0}
	_, err := store.Add(ctx, "alice", "old note", WithEmbedding(emb))
	require.NoError(t, err)

	// 45 days idle with default importance classifies fading. List is a
	// pure read; it must not resurface anything by itself.
	atTime(store, t0.Add(45*24*time.Hour))
	all, err := store.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, intelligence.StateFading, all[0].State)

	// The access that pulls it back reports resurfaced exactly once.
	hits, err := store.Search(ctx, "alice", "first touch", emb, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, intelligence.StateResurfaced, hits[0].State)

	// The next access reports strong again.
	hits, err = store.Search(ctx, "alice", "second touch", emb, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, intelligence.StateStrong, hits[0].State)
}

func TestImportanceSplitsStateAfterTwoDays(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	atTime(store, t0)

	emb := []float64{1, 0, 0}
	heavy, err := store.Add(ctx, "alice", "critical fact", WithEmbedding(emb), WithImportance(10.0))
	require.NoError(t, err)
	light, err := store.Add(ctx, "alice", "trivia", WithEmbedding(emb), WithImportance(0.1))
	require.NoError(t, err)

	atTime(store, t0.Add(2*24*time.Hour))

	all, err := store.List(ctx, "alice")
	require.NoError(t, err)
	states := make(map[int64]intelligence.State, len(all))
	for _, m := range all {
		states[m.ID] = m.State
	}
	assert.Equal(t, intelligence.StateStrong, states[heavy.ID])
	assert.Equal(t, intelligence.StateFading, states[light.ID])
}

func TestNoiseThresholdFiltersFarCandidates(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	near, err := store.Add(ctx, "alice", "near", WithEmbedding([]float64{1, 0.1, 0}))
	require.NoError(t, err)
	_, err = store.Add(ctx, "alice", "far", WithEmbedding([]float64{1, 0.6, 0}))
	require.NoError(t, err)

	hits, err := store.Search(ctx, "alice", "query", []float64{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, near.ID, hits[0].ID)
}

func TestTemporalQueryRanksNewerFirst(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	emb := []float64{1, 0, 0}

	atTime(store, t0.Add(-60*24*time.Hour))
	_, err := store.Add(ctx, "alice", "old note", WithEmbedding(emb))
	require.NoError(t, err)

	atTime(store, t0)
	newer, err := store.Add(ctx, "alice", "new note", WithEmbedding(emb))
	require.NoError(t, err)

	hits, err := store.Search(ctx, "alice", "recent notes", emb, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, newer.ID, hits[0].ID)
	assert.Equal(t, 1.0, hits[0].Relevance)
}

func TestWorkingSetEvictsLeastRecentlyActive(t *testing.T) {
	store, _ := newTestStore(t, 2)
	ctx := context.Background()

	for _, owner := range []string{"a", "b", "c"} {
		_, err := store.List(ctx, owner)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"c", "b"}, store.hydration.residentOwners())
}

func TestGetAcrossOwnersIsNotFound(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	rec, err := store.Add(ctx, "alice", "hers", WithEmbedding([]float64{1, 0, 0}))
	require.NoError(t, err)

	_, err = store.Get(ctx, "bob", rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := store.Delete(ctx, "bob", rec.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = store.Delete(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestDeleteRemovesVectorFromSearch(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	emb := []float64{1, 0, 0}
	doomed, err := store.Add(ctx, "alice", "doomed", WithEmbedding(emb))
	require.NoError(t, err)
	keeper, err := store.Add(ctx, "alice", "keeper", WithEmbedding(emb))
	require.NoError(t, err)

	removed, err := store.Delete(ctx, "alice", doomed.ID)
	require.NoError(t, err)
	require.True(t, removed)

	hits, err := store.Search(ctx, "alice", "anything", emb, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, keeper.ID, hits[0].ID)
}

func TestEmptyQueryShortCircuits(t *testing.T) {
	store, _ := newTestStore(t, 10)

	hits, err := store.Search(context.Background(), "alice", "   ", []float64{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAddValidation(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	_, err := store.Add(ctx, "alice", "  ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = store.Add(ctx, "alice", "content", WithEmbedding([]float64{1, 0}))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestUpdatePartialFields(t *testing.T) {
	store, repo := newTestStore(t, 10)
	ctx := context.Background()

	rec, err := store.Add(ctx, "alice", "before", WithEmbedding([]float64{1, 0, 0}))
	require.NoError(t, err)

	content := "after"
	importance := 3.0
	updated, err := store.Update(ctx, "alice", rec.ID, &storage.FieldUpdates{
		Content:    &content,
		Importance: &importance,
	})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Content)
	assert.Equal(t, 3.0, updated.Importance)

	// The durable store saw the same partial update.
	stored, err := repo.SelectByIDs(ctx, "alice", []int64{rec.ID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "after", stored[0].Content)

	_, err = store.Update(ctx, "alice", 999999, &storage.FieldUpdates{Content: &content})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementSummaryCountsAdvancesScoring(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	rec, err := store.Add(ctx, "alice", "used in answers", WithEmbedding([]float64{1, 0, 0}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.IncrementSummaryCounts(ctx, "alice", []int64{rec.ID}))
	}

	got, err := store.Get(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.SummaryCount)
}

func TestGetCountsAsAccess(t *testing.T) {
	store, repo := newTestStore(t, 10)
	ctx := context.Background()

	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	atTime(store, t0)

	rec, err := store.Add(ctx, "alice", "old note", WithEmbedding([]float64{1, 0, 0}))
	require.NoError(t, err)

	// 45 days idle classifies fading; the read itself resurfaces it.
	atTime(store, t0.Add(45*24*time.Hour))
	got, err := store.Get(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, intelligence.StateResurfaced, got.State)
	assert.Equal(t, 1, got.AccessCount)

	// The next read touches a now-strong memory.
	got, err = store.Get(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, intelligence.StateStrong, got.State)
	assert.Equal(t, 2, got.AccessCount)

	// The metrics reached the durable store.
	stored, err := repo.SelectByIDs(ctx, "alice", []int64{rec.ID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].AccessCount)
}

func TestGetInvalidatesCachedResults(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	emb := []float64{1, 0, 0}
	rec, err := store.Add(ctx, "alice", "a note", WithEmbedding(emb))
	require.NoError(t, err)

	_, err = store.Search(ctx, "alice", "q", emb, 5)
	require.NoError(t, err)
	_, ok := store.CachedResults("alice", "q", 5)
	require.True(t, ok)

	// The access-metric update behind Get changes ranking inputs.
	_, err = store.Get(ctx, "alice", rec.ID)
	require.NoError(t, err)
	_, ok = store.CachedResults("alice", "q", 5)
	assert.False(t, ok)
}

func TestGetFallsBackToDurableStore(t *testing.T) {
	store, repo := newTestStore(t, 10)
	ctx := context.Background()

	// Hydrate alice first, then insert behind the working set's back.
	_, err := store.List(ctx, "alice")
	require.NoError(t, err)

	now := time.Now()
	rec := &storage.Record{
		OwnerID:        "alice",
		Content:        "out of band",
		Embedding:      []float64{1, 0, 0},
		Importance:     1.0,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	require.NoError(t, repo.Insert(ctx, rec))

	got, err := store.Get(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "out of band", got.Content)
	assert.Equal(t, 1, got.AccessCount)

	// Delete sees the record too: the fallback joined the working set.
	removed, err := store.Delete(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestConcurrentSearchesUpdateSharedRecordsSafely(t *testing.T) {
	store, _ := newTestStore(t, 10)
	ctx := context.Background()

	emb := []float64{1, 0, 0}
	rec, err := store.Add(ctx, "alice", "shared", WithEmbedding(emb))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				// Distinct queries keep every search on the ranking path.
				_, err := store.Search(ctx, "alice", fmt.Sprintf("query %d %d", g, i), emb, 5)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	all, err := store.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rec.ID, all[0].ID)
	assert.Equal(t, 100, all[0].AccessCount, "every search counts as exactly one access")
}

func TestConcurrentFirstTouchesShareOneLoad(t *testing.T) {
	repo := newFakeRepo()
	index := flat.New(3)
	cfg := &Config{
		Dimension:       3,
		MaxActiveOwners: 10,
		Storage:         StorageConfig{Provider: "sqlite"},
	}
	store, err := NewStore(cfg, repo, index, nil)
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Now()
	rec := &storage.Record{
		OwnerID:        "alice",
		Content:        "seeded",
		Embedding:      []float64{1, 0, 0},
		Importance:     1.0,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	require.NoError(t, repo.Insert(ctx, rec))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.List(ctx, "alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, repo.OwnerLoads("alice"), "racing first touches must share one load")
	assert.Equal(t, 1, index.Size("alice"), "no duplicate vector insertions")
}

// failingRepo wraps fakeRepo with an injectable insert failure.
type failingRepo struct {
	*fakeRepo
	insertErr error
}

func (r *failingRepo) Insert(ctx context.Context, rec *storage.Record) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	return r.fakeRepo.Insert(ctx, rec)
}

func TestStorageFailuresCarrySentinel(t *testing.T) {
	repo := &failingRepo{fakeRepo: newFakeRepo(), insertErr: errors.New("disk full")}
	cfg := &Config{
		Dimension:       3,
		MaxActiveOwners: 10,
		Storage:         StorageConfig{Provider: "sqlite"},
	}
	store, err := NewStore(cfg, repo, flat.New(3), nil)
	require.NoError(t, err)

	_, err = store.Add(context.Background(), "alice", "content", WithEmbedding([]float64{1, 0, 0}))
	assert.ErrorIs(t, err, ErrStorageOperation)

	var memErr *MemoryError
	require.ErrorAs(t, err, &memErr)
	assert.Equal(t, "Add", memErr.Op)
}

func TestEvictedOwnerRehydratesWithoutDuplicates(t *testing.T) {
	store, _ := newTestStore(t, 2)
	ctx := context.Background()

	emb := []float64{1, 0, 0}
	_, err := store.Add(ctx, "a", "note", WithEmbedding(emb))
	require.NoError(t, err)

	// Push owner a out of the working set, then touch it again.
	for _, owner := range []string{"b", "c"} {
		_, err := store.List(ctx, owner)
		require.NoError(t, err)
	}

	hits, err := store.Search(ctx, "a", "note", emb, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
