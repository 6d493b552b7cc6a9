package core

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// AIService is the external text service the Brain depends on. Every
// method degrades to a documented fallback instead of failing; see
// pkg/ai for the production implementation.
type AIService interface {
	Embed(ctx context.Context, text string) []float64
	Summarize(ctx context.Context, text string) string
	ExtractTopics(ctx context.Context, text string) []string
	Synthesize(ctx context.Context, query string, passages []string) string
	RefineQuery(ctx context.Context, query string) string
}

// Brain is the top-level client: it pairs the memory store with the AI
// service and exposes the upload and query pipelines.
//
// Brain is safe for concurrent use.
//
// Example:
//
//	config, _ := core.LoadConfigFromEnv()
//	brain, _ := core.Open(config, nil)
//	defer brain.Close()
//
//	record, _ := brain.Upload(ctx, "user_001", "Read a paper on vector search today.")
//	answer, _ := brain.Query(ctx, "user_001", "what did I read recently?")
type Brain struct {
	store       *Store
	ai          AIService
	defaultTopK int
	logger      *slog.Logger

	// bg tracks background summary-count increments so tests and
	// shutdown can await them.
	bg sync.WaitGroup
}

// NewBrain creates a Brain over an existing store and AI service.
func NewBrain(store *Store, aiService AIService, defaultTopK int, logger *slog.Logger) *Brain {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Brain{
		store:       store,
		ai:          aiService,
		defaultTopK: defaultTopK,
		logger:      logger,
	}
}

// Store returns the underlying memory store.
func (b *Brain) Store() *Store {
	return b.store
}

// Upload ingests one note for the owner. The embedding, the reflective
// summary, and the topic list are produced by three concurrent AI calls,
// all awaited before the record is persisted. Extracted topics are
// unioned with any caller-supplied topics, deduplicated and sorted; the
// summary-usage counter starts at 1 because a summary is generated here.
//
// Empty content is rejected before any AI call or side effect.
func (b *Brain) Upload(ctx context.Context, owner, content string, opts ...AddOption) (*MemoryRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, NewMemoryError("Upload", ErrEmptyContent)
	}

	var (
		embedding []float64
		summary   string
		topics    []string
	)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		embedding = b.ai.Embed(ctx, content)
	}()
	go func() {
		defer wg.Done()
		summary = b.ai.Summarize(ctx, content)
	}()
	go func() {
		defer wg.Done()
		topics = b.ai.ExtractTopics(ctx, content)
	}()
	wg.Wait()

	options := newAddOptions(opts...)
	metadata := make(map[string]interface{}, len(options.Metadata)+1)
	for k, v := range options.Metadata {
		metadata[k] = v
	}
	if merged := mergeTopics(metadata["topics"], topics); len(merged) > 0 {
		metadata["topics"] = merged
	}

	return b.store.Add(ctx, owner, content, append(opts,
		WithEmbedding(embedding),
		WithSummary(summary),
		WithMetadata(metadata),
		WithSummaryCount(1),
	)...)
}

// mergeTopics unions caller-supplied topics with the extracted ones,
// deduplicated and sorted. Caller topics may arrive as []string or as
// []interface{} when the metadata came through JSON decoding.
func mergeTopics(existing interface{}, extracted []string) []string {
	set := make(map[string]struct{}, len(extracted))
	switch v := existing.(type) {
	case []string:
		for _, topic := range v {
			set[topic] = struct{}{}
		}
	case []interface{}:
		for _, item := range v {
			if topic, ok := item.(string); ok {
				set[topic] = struct{}{}
			}
		}
	}
	for _, topic := range extracted {
		set[topic] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	merged := make([]string, 0, len(set))
	for topic := range set {
		merged = append(merged, topic)
	}
	sort.Strings(merged)
	return merged
}

// Query retrieves the owner's most relevant memories and, unless
// synthesis is disabled, composes a reflective answer over them.
//
// Short queries (5 words or fewer) are expanded by the AI service before
// embedding; the original query text remains the cache key and the
// temporal-intent signal. When synthesis is disabled, a repeated query
// is answered straight from the semantic cache without any AI call.
// Memories used in a synthesized answer get their summary-usage counter
// bumped by a background task awaitable via Wait.
func (b *Brain) Query(ctx context.Context, owner, query string, opts ...QueryOption) (*QueryAnswer, error) {
	options := newQueryOptions(b.defaultTopK, opts...)

	if strings.TrimSpace(query) == "" {
		return &QueryAnswer{
			Query:        query,
			RefinedQuery: query,
			Hits:         []SearchHit{},
			Answer:       "Please provide a search query.",
		}, nil
	}

	if !options.Synthesize {
		if hits, ok := b.store.CachedResults(owner, query, options.TopK); ok {
			b.logger.Debug("query served from semantic cache", "owner", owner)
			return &QueryAnswer{Query: query, RefinedQuery: query, Hits: hits}, nil
		}
	}

	refined := query
	if options.Refine {
		refined = b.ai.RefineQuery(ctx, query)
	}
	embedding := b.ai.Embed(ctx, refined)

	hits, err := b.store.Search(ctx, owner, query, embedding, options.TopK)
	if err != nil {
		return nil, err
	}

	answer := &QueryAnswer{
		Query:        query,
		RefinedQuery: refined,
		Hits:         hits,
	}
	if !options.Synthesize {
		return answer, nil
	}

	passages := make([]string, 0, len(hits))
	ids := make([]int64, 0, len(hits))
	for _, hit := range hits {
		passage := hit.Summary
		if passage == "" {
			passage = hit.Content
		}
		passages = append(passages, passage)
		ids = append(ids, hit.ID)
	}

	answer.Answer = b.ai.Synthesize(ctx, query, passages)

	if len(ids) > 0 {
		bgCtx := context.WithoutCancel(ctx)
		b.bg.Add(1)
		go func() {
			defer b.bg.Done()
			if err := b.store.IncrementSummaryCounts(bgCtx, owner, ids); err != nil {
				b.logger.Warn("summary count increment failed", "owner", owner, "error", err)
			}
		}()
	}
	return answer, nil
}

// Wait blocks until every background summary-count increment dispatched
// so far has completed.
func (b *Brain) Wait() {
	b.bg.Wait()
}

// Close awaits background work and releases the store.
func (b *Brain) Close() error {
	b.bg.Wait()
	return b.store.Close()
}
