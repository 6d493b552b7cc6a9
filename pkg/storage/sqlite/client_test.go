package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage/sqlite"
)

func newTestClient(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "memories.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newRecord(owner string, embedding []float64) *storage.Record {
	now := time.Now().UTC().Truncate(time.Second)
	return &storage.Record{
		OwnerID:        owner,
		Content:        "learned about garlic fermentation",
		Summary:        "a note on fermentation",
		Embedding:      embedding,
		Metadata:       map[string]interface{}{"topics": []interface{}{"cooking"}},
		Importance:     1.0,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
}

func TestInsertAssignsID(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	record := newRecord("alice", []float64{1, 0, 0})
	require.NoError(t, client.Insert(ctx, record))
	assert.NotZero(t, record.ID)

	got, err := client.SelectByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, record.ID, got[0].ID)
	assert.Equal(t, "learned about garlic fermentation", got[0].Content)
	assert.Equal(t, []float64{1, 0, 0}, got[0].Embedding)
}

func TestSelectByOwnerIsPartitioned(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Insert(ctx, newRecord("alice", []float64{1, 0, 0})))
	require.NoError(t, client.Insert(ctx, newRecord("bob", []float64{0, 1, 0})))

	got, err := client.SelectByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].OwnerID)
}

func TestSelectByIDsSkipsMissingAndForeign(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	mine := newRecord("alice", []float64{1, 0, 0})
	theirs := newRecord("bob", []float64{0, 1, 0})
	require.NoError(t, client.Insert(ctx, mine))
	require.NoError(t, client.Insert(ctx, theirs))

	got, err := client.SelectByIDs(ctx, "alice", []int64{mine.ID, theirs.ID, 99999})
	require.NoError(t, err)
	require.Len(t, got, 1, "foreign and unknown ids are skipped silently")
	assert.Equal(t, mine.ID, got[0].ID)
}

func TestUpdateFieldsPartial(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	record := newRecord("alice", []float64{1, 0, 0})
	require.NoError(t, client.Insert(ctx, record))

	count := 7
	accessed := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	err := client.UpdateFields(ctx, record.ID, "alice", &storage.FieldUpdates{
		AccessCount:    &count,
		LastAccessedAt: &accessed,
	})
	require.NoError(t, err)

	got, err := client.SelectByIDs(ctx, "alice", []int64{record.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].AccessCount)
	assert.Equal(t, "learned about garlic fermentation", got[0].Content, "untouched fields survive")
}

func TestUpdateFieldsWrongOwnerAffectsNothing(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	record := newRecord("alice", []float64{1, 0, 0})
	require.NoError(t, client.Insert(ctx, record))

	count := 7
	require.NoError(t, client.UpdateFields(ctx, record.ID, "bob", &storage.FieldUpdates{AccessCount: &count}))

	got, err := client.SelectByIDs(ctx, "alice", []int64{record.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, got[0].AccessCount)
}

func TestDelete(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	record := newRecord("alice", []float64{1, 0, 0})
	require.NoError(t, client.Insert(ctx, record))

	removed, err := client.Delete(ctx, record.ID, "bob")
	require.NoError(t, err)
	assert.False(t, removed, "cross-owner delete must not remove anything")

	removed, err = client.Delete(ctx, record.ID, "alice")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = client.Delete(ctx, record.ID, "alice")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSearchSimilarRanksByCosine(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	aligned := newRecord("alice", []float64{1, 0, 0})
	orthogonal := newRecord("alice", []float64{0, 1, 0})
	require.NoError(t, client.Insert(ctx, aligned))
	require.NoError(t, client.Insert(ctx, orthogonal))

	matches, err := client.SearchSimilar(ctx, "alice", []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, aligned.ID, matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}
