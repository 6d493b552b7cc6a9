package intelligence

import (
	"math"
)

// historyCapacity is the maximum number of recent query embeddings kept
// per owner for reuse scoring.
const historyCapacity = 20

// reuseWindow is how many of the most recent queries feed the reuse signal.
const reuseWindow = 10

// QueryHistory is a bounded rolling window of an owner's recent query
// embeddings. It backs the semantic-reuse signal of the importance scorer.
//
// QueryHistory is not safe for concurrent use; callers serialize access
// per owner.
type QueryHistory struct {
	embeddings [][]float64
}

// NewQueryHistory creates an empty history.
func NewQueryHistory() *QueryHistory {
	return &QueryHistory{}
}

// Record appends a query embedding, evicting the oldest entry once the
// window is full.
func (h *QueryHistory) Record(embedding []float64) {
	if len(embedding) == 0 {
		return
	}
	if len(h.embeddings) == historyCapacity {
		copy(h.embeddings, h.embeddings[1:])
		h.embeddings = h.embeddings[:historyCapacity-1]
	}
	h.embeddings = append(h.embeddings, embedding)
}

// Recent returns up to n of the most recent embeddings, oldest first.
func (h *QueryHistory) Recent(n int) [][]float64 {
	if n > len(h.embeddings) {
		n = len(h.embeddings)
	}
	return h.embeddings[len(h.embeddings)-n:]
}

// Len returns the number of recorded queries.
func (h *QueryHistory) Len() int {
	return len(h.embeddings)
}

// ImportanceScorer produces a normalized effective importance in [0, 1]
// for ranking. It is distinct from the stored base importance: the base
// value acts as a multiplier over three observed signals.
//
//	freq_score  = min(1, ln(access_count+1)/4)       25%
//	ai_score    = min(1, summary_count/5)            35%
//	reuse_score = mean exp(-1.5 * L2 distance) over
//	              the last 10 recorded queries       40%
//
// The result is clamped to [0, 1] and rounded to 3 decimals.
type ImportanceScorer struct {
	freqWeight  float64
	aiWeight    float64
	reuseWeight float64
}

// NewImportanceScorer creates a scorer with the default signal weights
// (0.25 frequency, 0.35 summary usage, 0.40 semantic reuse).
func NewImportanceScorer() *ImportanceScorer {
	return &ImportanceScorer{
		freqWeight:  0.25,
		aiWeight:    0.35,
		reuseWeight: 0.40,
	}
}

// Effective computes the effective importance of a memory.
//
// Parameters:
//   - baseImportance: stored base importance (user/system supplied)
//   - accessCount: number of recorded accesses
//   - summaryCount: times the memory was included in a synthesized answer
//   - embedding: the memory's embedding (may be nil; reuse signal is then 0)
//   - history: the owner's rolling query history (may be nil)
func (s *ImportanceScorer) Effective(baseImportance float64, accessCount, summaryCount int, embedding []float64, history *QueryHistory) float64 {
	freqScore := math.Min(1.0, math.Log1p(float64(accessCount))/4.0)
	aiScore := math.Min(1.0, float64(summaryCount)/5.0)

	reuseScore := 0.0
	if history != nil && history.Len() > 0 && len(embedding) > 0 {
		recent := history.Recent(reuseWindow)
		sum := 0.0
		for _, q := range recent {
			sum += math.Exp(-1.5 * euclideanDistance(embedding, q))
		}
		reuseScore = sum / float64(len(recent))
	}

	combined := s.freqWeight*freqScore + s.aiWeight*aiScore + s.reuseWeight*reuseScore
	effective := combined * baseImportance
	effective = math.Max(0.0, math.Min(1.0, effective))

	return math.Round(effective*1000) / 1000
}

// euclideanDistance computes the L2 distance between two vectors.
// Trailing components of the longer vector are ignored.
func euclideanDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
