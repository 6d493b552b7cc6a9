package intelligence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/intelligence"
)

func TestRetentionBounds(t *testing.T) {
	model := intelligence.NewRetentionModel()
	now := time.Now()

	cases := []struct {
		importance  float64
		accessCount int
		daysOld     float64
	}{
		{1.0, 0, 0},
		{1.0, 0, 45},
		{0.1, 0, 2},
		{10.0, 100, 365},
		{1.0, 0, 10000},
	}

	for _, tc := range cases {
		created := now.Add(-time.Duration(tc.daysOld*24) * time.Hour)
		retention := model.Score(tc.importance, tc.accessCount, created, created, now)
		assert.Greater(t, retention, 0.0, "retention must stay above 0")
		assert.LessOrEqual(t, retention, 1.0, "retention must not exceed 1")
	}
}

func TestRetentionDecaysOverTime(t *testing.T) {
	model := intelligence.NewRetentionModel()
	now := time.Now()

	fresh := model.Score(1.0, 0, now, now, now)
	week := now.Add(-7 * 24 * time.Hour)
	aged := model.Score(1.0, 0, week, week, now)

	assert.Greater(t, fresh, aged, "older memories should retain less")
}

func TestAccessCountSlowsDecay(t *testing.T) {
	model := intelligence.NewRetentionModel()
	now := time.Now()
	created := now.Add(-30 * 24 * time.Hour)

	untouched := model.Score(1.0, 0, created, created, now)
	wellUsed := model.Score(1.0, 20, created, created, now)

	assert.Greater(t, wellUsed, untouched, "frequently accessed memories decay slower")
}

func TestStaleMemoryClassifiesFading(t *testing.T) {
	model := intelligence.NewRetentionModel()
	now := time.Now()

	// Last accessed 45 days ago with default importance.
	accessed := now.Add(-45 * 24 * time.Hour)
	retention := model.Score(1.0, 0, accessed, accessed, now)

	assert.Equal(t, intelligence.StateFading, model.Classify(retention))
}

func TestImportanceSeparatesStrongFromFading(t *testing.T) {
	model := intelligence.NewRetentionModel()
	now := time.Now()
	created := now.Add(-2 * 24 * time.Hour)

	high := model.Score(10.0, 0, created, created, now)
	low := model.Score(0.1, 0, created, created, now)

	assert.Equal(t, intelligence.StateStrong, model.Classify(high),
		"high-importance memory should stay strong after 2 days")
	assert.Equal(t, intelligence.StateFading, model.Classify(low),
		"low-importance memory should fade after 2 days")
}

func TestResurfacedIsOneShot(t *testing.T) {
	model := intelligence.NewRetentionModel()

	assert.Equal(t, intelligence.StateResurfaced, model.TransitionOnAccess(intelligence.StateFading))
	assert.Equal(t, intelligence.StateStrong, model.TransitionOnAccess(intelligence.StateStrong))
	assert.Equal(t, intelligence.StateStrong, model.TransitionOnAccess(intelligence.StateResurfaced))
}

func TestZeroImportanceFallsBackToDefault(t *testing.T) {
	model := intelligence.NewRetentionModel()
	now := time.Now()
	created := now.Add(-24 * time.Hour)

	retention := model.Score(0, 0, created, created, now)
	assert.Greater(t, retention, 0.0)
	assert.LessOrEqual(t, retention, 1.0)
}
