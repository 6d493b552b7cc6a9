// Package intelligence provides the scoring layer for memory retrieval:
// a psychologically-inspired retention model (forgetting curve) and a
// dynamic importance scorer that blends access, summary-usage, and
// semantic-reuse signals.
package intelligence

import (
	"math"
	"time"
)

// State is the derived lifecycle state of a memory.
//
// It is never persisted; it is recomputed from retention on every read.
type State string

const (
	// StateStrong indicates retention above the strong threshold.
	StateStrong State = "strong"

	// StateFading indicates retention at or below the strong threshold.
	StateFading State = "fading"

	// StateResurfaced is a one-shot transition marker reported when an
	// access pulls a fading memory back. It is never the resting state:
	// the next access to the same memory reports StateStrong again.
	StateResurfaced State = "resurfaced"
)

// RetentionModel computes a forgetting-curve retention score for a memory
// at a given instant.
//
// Retention combines short-term decay since the last access with a much
// slower long-term decay since creation. Memory strength grows with base
// importance and logarithmically with access count, which slows decay:
//
//	strength   = importance * (1 + 0.5 * ln(access_count + 1))
//	decay_rate = 0.05 / strength
//	retention  = exp(-decay_rate * days_since_access) * exp(-0.005 * days_since_creation / importance)
//
// A strength of 1.0 (importance 1, never accessed) gives a half-life of
// roughly 14 days.
type RetentionModel struct {
	// baseDecay is the short-term decay rate before strength reduction.
	baseDecay float64

	// longTermDecay is the slow decay applied over total memory age.
	longTermDecay float64

	// strongThreshold separates strong from fading memories.
	strongThreshold float64
}

// NewRetentionModel creates a retention model with the default parameters:
// base decay 0.05, long-term decay 0.005, strong threshold 0.7.
func NewRetentionModel() *RetentionModel {
	return &RetentionModel{
		baseDecay:       0.05,
		longTermDecay:   0.005,
		strongThreshold: 0.7,
	}
}

// Score computes the retention score in (0, 1] for a memory at instant now.
//
// Parameters:
//   - importance: base importance assigned at creation (defaults to 1.0 when
//     non-positive; a zero importance would zero the strength term)
//   - accessCount: number of recorded accesses (>= 0)
//   - createdAt: creation time
//   - lastAccessedAt: last access time (creation time if never accessed)
func (m *RetentionModel) Score(importance float64, accessCount int, createdAt, lastAccessedAt time.Time, now time.Time) float64 {
	if importance <= 0 {
		importance = 1.0
	}
	if accessCount < 0 {
		accessCount = 0
	}

	tLast := math.Max(0, now.Sub(lastAccessedAt).Hours()/24.0)
	tTotal := math.Max(0, now.Sub(createdAt).Hours()/24.0)

	strength := importance * (1.0 + 0.5*math.Log(float64(accessCount)+1.0))
	decayRate := m.baseDecay / strength

	shortTerm := math.Exp(-decayRate * tLast)
	longTerm := math.Exp(-m.longTermDecay * tTotal / importance)

	return shortTerm * longTerm
}

// Classify maps a retention score to its resting state.
func (m *RetentionModel) Classify(retention float64) State {
	if retention > m.strongThreshold {
		return StateStrong
	}
	return StateFading
}

// TransitionOnAccess reports the state observed by an access event given
// the state computed before the access metrics were updated. A fading
// memory reports StateResurfaced exactly once; everything else reports
// StateStrong.
func (m *RetentionModel) TransitionOnAccess(pre State) State {
	if pre == StateFading {
		return StateResurfaced
	}
	return StateStrong
}
