package core

// AddOption is a function type for configuring Add operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type AddOption func(*AddOptions)

// AddOptions contains configuration options for Add operations.
type AddOptions struct {
	// Summary is the reflective summary stored alongside the content.
	Summary string

	// Embedding is the pre-computed embedding for the content.
	Embedding []float64

	// Importance is the base importance (defaults to 1.0).
	Importance float64

	// Metadata contains additional metadata about the memory.
	Metadata map[string]interface{}

	// SummaryCount seeds the summary-usage counter. The upload pipeline
	// seeds it to 1 because a summary is generated at upload time.
	SummaryCount int
}

// WithSummary sets the stored summary for Add operations.
func WithSummary(summary string) AddOption {
	return func(opts *AddOptions) {
		opts.Summary = summary
	}
}

// WithEmbedding sets the pre-computed embedding for Add operations.
func WithEmbedding(embedding []float64) AddOption {
	return func(opts *AddOptions) {
		opts.Embedding = embedding
	}
}

// WithImportance sets the base importance for Add operations.
//
// Example:
//
//	record, _ := brain.Upload(ctx, "user_001", "content", core.WithImportance(2.0))
func WithImportance(importance float64) AddOption {
	return func(opts *AddOptions) {
		opts.Importance = importance
	}
}

// WithMetadata sets metadata for Add operations.
//
// Example:
//
//	record, _ := brain.Upload(ctx, "user_001", "content",
//	    core.WithMetadata(map[string]interface{}{"source": "notes-app"}))
func WithMetadata(metadata map[string]interface{}) AddOption {
	return func(opts *AddOptions) {
		opts.Metadata = metadata
	}
}

// WithSummaryCount seeds the summary-usage counter for Add operations.
func WithSummaryCount(count int) AddOption {
	return func(opts *AddOptions) {
		opts.SummaryCount = count
	}
}

// newAddOptions applies the given options over the defaults.
func newAddOptions(opts ...AddOption) *AddOptions {
	options := &AddOptions{
		Importance: 1.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// QueryOption is a function type for configuring Query operations.
type QueryOption func(*QueryOptions)

// QueryOptions contains configuration options for Query operations.
type QueryOptions struct {
	// TopK is the number of results to return.
	TopK int

	// Synthesize enables the synthesized reflection over the results.
	Synthesize bool

	// Refine enables query refinement for short queries.
	Refine bool
}

// WithTopK sets the result count for Query operations.
//
// Example:
//
//	answer, _ := brain.Query(ctx, "user_001", "golang notes", core.WithTopK(10))
func WithTopK(topK int) QueryOption {
	return func(opts *QueryOptions) {
		opts.TopK = topK
	}
}

// WithSynthesis enables or disables the synthesized reflection.
//
// When disabled, repeated queries can be served entirely from the
// semantic cache without touching the AI service.
func WithSynthesis(enabled bool) QueryOption {
	return func(opts *QueryOptions) {
		opts.Synthesize = enabled
	}
}

// WithRefinement enables or disables query refinement.
func WithRefinement(enabled bool) QueryOption {
	return func(opts *QueryOptions) {
		opts.Refine = enabled
	}
}

// newQueryOptions applies the given options over the defaults.
func newQueryOptions(defaultTopK int, opts ...QueryOption) *QueryOptions {
	options := &QueryOptions{
		TopK:       defaultTopK,
		Synthesize: true,
		Refine:     true,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.TopK <= 0 {
		options.TopK = defaultTopK
	}
	return options
}
