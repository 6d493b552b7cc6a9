package intelligence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/intelligence"
)

func TestEffectiveImportanceBounds(t *testing.T) {
	scorer := intelligence.NewImportanceScorer()
	history := intelligence.NewQueryHistory()
	history.Record([]float64{1, 0, 0})

	cases := []struct {
		base    float64
		access  int
		summary int
	}{
		{0, 0, 0},
		{1.0, 0, 0},
		{1.0, 1000, 100},
		{100.0, 1000, 100},
		{0.001, 1, 1},
	}

	for _, tc := range cases {
		got := scorer.Effective(tc.base, tc.access, tc.summary, []float64{1, 0, 0}, history)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestEffectiveImportanceNoSignals(t *testing.T) {
	scorer := intelligence.NewImportanceScorer()

	// No accesses, no summaries, no history: every signal is zero.
	got := scorer.Effective(1.0, 0, 0, []float64{1, 0}, intelligence.NewQueryHistory())
	assert.Equal(t, 0.0, got)
}

func TestReuseSignalRewardsRepeatedQueries(t *testing.T) {
	scorer := intelligence.NewImportanceScorer()
	embedding := []float64{0.5, 0.5, 0}

	history := intelligence.NewQueryHistory()
	history.Record(embedding) // identical query: distance 0, reuse 1.0

	got := scorer.Effective(1.0, 0, 0, embedding, history)
	// 0.40 reuse weight * 1.0 reuse score * 1.0 base
	assert.InDelta(t, 0.4, got, 1e-9)

	far := intelligence.NewQueryHistory()
	far.Record([]float64{100, 100, 100})
	distant := scorer.Effective(1.0, 0, 0, embedding, far)
	assert.Less(t, distant, got, "distant query history should contribute less reuse")
}

func TestSummarySignalSaturatesAtFive(t *testing.T) {
	scorer := intelligence.NewImportanceScorer()

	atCap := scorer.Effective(1.0, 0, 5, nil, nil)
	beyond := scorer.Effective(1.0, 0, 50, nil, nil)

	assert.InDelta(t, 0.35, atCap, 1e-9)
	assert.Equal(t, atCap, beyond)
}

func TestEffectiveImportanceRounding(t *testing.T) {
	scorer := intelligence.NewImportanceScorer()

	got := scorer.Effective(1.0, 1, 1, nil, nil)
	assert.Equal(t, got, float64(int(got*1000))/1000, "result is rounded to 3 decimals")
}

func TestQueryHistoryWindow(t *testing.T) {
	history := intelligence.NewQueryHistory()

	for i := 0; i < 25; i++ {
		history.Record([]float64{float64(i)})
	}

	assert.Equal(t, 20, history.Len(), "history keeps at most 20 queries")

	recent := history.Recent(10)
	assert.Len(t, recent, 10)
	assert.Equal(t, 15.0, recent[0][0], "oldest of the last 10")
	assert.Equal(t, 24.0, recent[9][0], "most recent query")
}

func TestQueryHistoryIgnoresEmptyEmbeddings(t *testing.T) {
	history := intelligence.NewQueryHistory()
	history.Record(nil)
	history.Record([]float64{})
	assert.Equal(t, 0, history.Len())
}
