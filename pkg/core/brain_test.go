package core

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/vector/flat"
)

// fakeAI is a deterministic AI service for tests.
type fakeAI struct {
	embedCalls     int32
	synthesizeHits int32
	topics         []string
}

func (f *fakeAI) Embed(_ context.Context, text string) []float64 {
	atomic.AddInt32(&f.embedCalls, 1)
	// Every text embeds to the same vector so uploads and queries match.
	return []float64{1, 0, 0}
}

func (f *fakeAI) Summarize(_ context.Context, text string) string {
	return "summary of: " + text
}

func (f *fakeAI) ExtractTopics(_ context.Context, _ string) []string {
	return f.topics
}

func (f *fakeAI) Synthesize(_ context.Context, _ string, passages []string) string {
	atomic.AddInt32(&f.synthesizeHits, 1)
	if len(passages) == 0 {
		return "No relevant memories found to reflect upon."
	}
	return "a reflection"
}

func (f *fakeAI) RefineQuery(_ context.Context, query string) string {
	return query + " expanded"
}

func newTestBrain(t *testing.T) (*Brain, *fakeAI) {
	t.Helper()
	repo := newFakeRepo()
	cfg := &Config{
		Dimension:       3,
		MaxActiveOwners: 10,
		Storage:         StorageConfig{Provider: "sqlite"},
	}
	store, err := NewStore(cfg, repo, flat.New(3), nil)
	require.NoError(t, err)

	aiService := &fakeAI{topics: []string{"alpha", "beta"}}
	return NewBrain(store, aiService, 5, nil), aiService
}

func TestUploadRunsFullPipeline(t *testing.T) {
	brain, _ := newTestBrain(t)
	ctx := context.Background()

	rec, err := brain.Upload(ctx, "alice", "learned about flat indexes",
		WithMetadata(map[string]interface{}{
			"source": "notes",
			"topics": []string{"indexes", "beta"},
		}))
	require.NoError(t, err)

	assert.Equal(t, "summary of: learned about flat indexes", rec.Summary)
	assert.Equal(t, 1, rec.SummaryCount, "upload seeds the summary counter")
	assert.Equal(t, []string{"alpha", "beta", "indexes"}, rec.Metadata["topics"],
		"caller topics union with extracted ones, deduplicated and sorted")
	assert.Equal(t, "notes", rec.Metadata["source"], "caller metadata survives the topic merge")
	assert.Equal(t, 1.0, rec.Importance)
}

func TestUploadKeepsCallerTopicsWhenExtractionIsEmpty(t *testing.T) {
	brain, aiService := newTestBrain(t)
	aiService.topics = nil
	ctx := context.Background()

	rec, err := brain.Upload(ctx, "alice", "a note",
		WithMetadata(map[string]interface{}{"topics": []interface{}{"zeta", "eta"}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"eta", "zeta"}, rec.Metadata["topics"])
}

func TestUploadRejectsEmptyContent(t *testing.T) {
	brain, aiService := newTestBrain(t)

	_, err := brain.Upload(context.Background(), "alice", "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Zero(t, atomic.LoadInt32(&aiService.embedCalls), "no AI call before validation")
}

func TestQueryEmptyReturnsPlaceholder(t *testing.T) {
	brain, _ := newTestBrain(t)

	answer, err := brain.Query(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Empty(t, answer.Hits)
	assert.Equal(t, "Please provide a search query.", answer.Answer)
}

func TestQuerySynthesizesAndIncrementsInBackground(t *testing.T) {
	brain, _ := newTestBrain(t)
	ctx := context.Background()

	rec, err := brain.Upload(ctx, "alice", "read a paper on retrieval")
	require.NoError(t, err)

	answer, err := brain.Query(ctx, "alice", "papers")
	require.NoError(t, err)
	require.Len(t, answer.Hits, 1)
	assert.Equal(t, "a reflection", answer.Answer)
	assert.Equal(t, "papers expanded", answer.RefinedQuery)

	brain.Wait()
	got, err := brain.Store().Get(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.SummaryCount, "seeded 1 at upload, +1 from the synthesized answer")
}

func TestQueryWithoutSynthesisUsesCacheFastPath(t *testing.T) {
	brain, aiService := newTestBrain(t)
	ctx := context.Background()

	_, err := brain.Upload(ctx, "alice", "note about caching")
	require.NoError(t, err)

	first, err := brain.Query(ctx, "alice", "caching", WithSynthesis(false))
	require.NoError(t, err)
	require.Len(t, first.Hits, 1)

	callsAfterFirst := atomic.LoadInt32(&aiService.embedCalls)

	second, err := brain.Query(ctx, "alice", "caching", WithSynthesis(false))
	require.NoError(t, err)
	assert.Equal(t, first.Hits, second.Hits)
	assert.Equal(t, callsAfterFirst, atomic.LoadInt32(&aiService.embedCalls),
		"the repeated query must not touch the AI service")
	assert.Zero(t, atomic.LoadInt32(&aiService.synthesizeHits))
}

func TestQueryNoMatchesSynthesizesNothing(t *testing.T) {
	brain, _ := newTestBrain(t)

	answer, err := brain.Query(context.Background(), "alice", "anything at all")
	require.NoError(t, err)
	assert.Empty(t, answer.Hits)
	assert.Equal(t, "No relevant memories found to reflect upon.", answer.Answer)
}

func TestQueryRefinementCanBeDisabled(t *testing.T) {
	brain, _ := newTestBrain(t)
	ctx := context.Background()

	_, err := brain.Upload(ctx, "alice", "plain note")
	require.NoError(t, err)

	answer, err := brain.Query(ctx, "alice", "plain", WithRefinement(false), WithSynthesis(false))
	require.NoError(t, err)
	assert.Equal(t, "plain", answer.RefinedQuery)
}
