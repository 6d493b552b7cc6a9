// Package ai wraps the external AI service used for embeddings,
// summarization, topic extraction, query refinement, and answer
// synthesis.
//
// Every operation is independently failure-tolerant: transient upstream
// errors are retried with exponential backoff, and exhausted retries
// degrade to a documented fallback value (zero vector, placeholder text)
// instead of failing the caller. Outbound calls pass through a circuit
// breaker and a rate limiter.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultChatModel      = "google/gemini-2.0-flash-001"
	defaultEmbeddingModel = "text-embedding-ada-002"
	defaultTimeout        = 45 * time.Second
	defaultRetryBaseDelay = time.Second
	maxAttempts           = 3
	embedCacheSize        = 1000
)

// Config contains configuration for the AI client.
type Config struct {
	// APIKey authenticates against the service. When empty the client
	// runs in offline mode and every call returns its fallback value.
	APIKey string

	// BaseURL points at an OpenAI-compatible API.
	BaseURL string

	// ChatModel is used for summarization, topics, refinement, and
	// synthesis.
	ChatModel string

	// EmbeddingModel is used for text vectorization. Unrecognized names
	// fall back to text-embedding-ada-002.
	EmbeddingModel string

	// Dimension is the embedding dimension; fallback vectors use it.
	Dimension int

	// Timeout bounds each individual upstream call.
	Timeout time.Duration

	// RequestsPerSecond throttles outbound calls. Zero disables the
	// limiter.
	RequestsPerSecond float64

	// RetryBaseDelay is the first backoff delay, doubled per attempt.
	RetryBaseDelay time.Duration
}

// Client talks to the external AI service.
type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel openai.EmbeddingModel
	dimension  int
	timeout    time.Duration
	baseDelay  time.Duration
	offline    bool

	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	embedCache *lru.Cache[string, []float64]
	logger     *slog.Logger
}

// NewClient creates an AI client. A nil logger falls back to the default
// slog logger.
func NewClient(cfg *Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = defaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultEmbeddingModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("ai: embedding dimension must be positive")
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}

	embedCache, err := lru.New[string, []float64](embedCacheSize)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ai-service",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		api:        openai.NewClientWithConfig(apiConfig),
		chatModel:  cfg.ChatModel,
		embedModel: resolveEmbeddingModel(cfg.EmbeddingModel),
		dimension:  cfg.Dimension,
		timeout:    cfg.Timeout,
		baseDelay:  cfg.RetryBaseDelay,
		offline:    cfg.APIKey == "",
		breaker:    breaker,
		limiter:    limiter,
		embedCache: embedCache,
		logger:     logger,
	}, nil
}

// resolveEmbeddingModel maps a configured model name onto the client
// library's embedding-model enum. Names the library does not know fall
// back to Ada v2 so the request always carries a valid model.
func resolveEmbeddingModel(name string) openai.EmbeddingModel {
	var model openai.EmbeddingModel
	_ = model.UnmarshalText([]byte(name))
	if model == openai.Unknown {
		model = openai.AdaEmbeddingV2
	}
	return model
}

// Dimension returns the embedding dimension this client produces.
func (c *Client) Dimension() int {
	return c.dimension
}

// Embed converts text to a vector. Failures degrade to the zero vector
// of the configured dimension. Repeated texts are served from a bounded
// memo cache.
func (c *Client) Embed(ctx context.Context, text string) []float64 {
	if cached, ok := c.embedCache.Get(text); ok {
		return cached
	}
	if c.offline {
		return make([]float64, c.dimension)
	}

	var embedding []float64
	err := c.call(ctx, "embed", func(ctx context.Context) error {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: c.embedModel,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return errors.New("no embedding data returned")
		}
		raw := resp.Data[0].Embedding
		embedding = make([]float64, len(raw))
		for i, v := range raw {
			embedding[i] = float64(v)
		}
		return nil
	})
	if err != nil {
		c.logger.Error("embedding degraded to zero vector", "error", err)
		return make([]float64, c.dimension)
	}

	c.embedCache.Add(text, embedding)
	return embedding
}

// Summarize produces a short reflective summary of the text. Failures
// degrade to a truncated-text placeholder.
func (c *Client) Summarize(ctx context.Context, text string) string {
	if c.offline {
		return fmt.Sprintf("Reflection Placeholder: %s...", truncate(text, 50))
	}

	systemPrompt := "You are a reflective personal assistant. Summarize the following memory " +
		"in a concise, second-brain tone (3-5 sentences). Avoid speculative or generic " +
		"language. Stay strictly grounded in the provided text."

	summary, err := c.chat(ctx, "summarize", systemPrompt, text)
	if err != nil {
		c.logger.Error("summarization degraded to placeholder", "error", err)
		return fmt.Sprintf("Memory captured: %s... [Summary generation failed]", truncate(text, 150))
	}
	return summary
}

// ExtractTopics extracts up to 5 keywords from the text. Failures
// degrade to an empty list.
func (c *Client) ExtractTopics(ctx context.Context, text string) []string {
	if c.offline {
		return nil
	}

	systemPrompt := "Extract the top 3-5 keywords or short topics from the following text. " +
		"Return them as a comma-separated list. Be concise."

	content, err := c.chat(ctx, "extract_topics", systemPrompt, text)
	if err != nil {
		c.logger.Error("topic extraction degraded to empty list", "error", err)
		return nil
	}

	var topics []string
	for _, part := range strings.Split(content, ",") {
		if topic := strings.TrimSpace(part); topic != "" {
			topics = append(topics, topic)
		}
	}
	if len(topics) > 5 {
		topics = topics[:5]
	}
	return topics
}

// RefineQuery expands short or abstract queries into a semantically
// richer search prompt. Long queries and failures return the original
// query unchanged.
func (c *Client) RefineQuery(ctx context.Context, query string) string {
	if len(strings.Fields(query)) > 5 || c.offline {
		return query
	}

	systemPrompt := "You are a search assistant. Expand the following short/abstract query into " +
		"a semantically rich search prompt that captures the underlying intent. " +
		"Output ONLY the expanded query, no explanations."

	refined, err := c.chat(ctx, "refine_query", systemPrompt, query)
	if err != nil {
		c.logger.Warn("query refinement degraded to original query", "error", err)
		return query
	}
	return refined
}

// Synthesize composes an answer to the query grounded in the retrieved
// passages. Failures degrade to a canned response.
func (c *Client) Synthesize(ctx context.Context, query string, passages []string) string {
	if c.offline {
		return "Unable to synthesize memories without an active AI connection."
	}
	if len(passages) == 0 {
		return "No relevant memories found to reflect upon."
	}

	systemPrompt := "Based ONLY on the retrieved memories provided, synthesize a response to the user's query. " +
		"Maintain a reflective, second-brain tone. Be concise (3-5 sentences). " +
		"If the memories do not contain the answer, state that you don't recall this clearly " +
		"instead of speculating."

	userPrompt := fmt.Sprintf("Query: %s\n\nRetrieved Memories:\n%s",
		query, strings.Join(passages, "\n---\n"))

	answer, err := c.chat(ctx, "synthesize", systemPrompt, userPrompt)
	if err != nil {
		c.logger.Error("synthesis degraded to canned response", "error", err)
		return "I found some relevant notes, but I'm having trouble synthesizing a reflection right now."
	}
	return answer
}

// chat performs one system+user chat completion through the retry and
// breaker machinery.
func (c *Client) chat(ctx context.Context, op, systemPrompt, userPrompt string) (string, error) {
	var content string
	err := c.call(ctx, op, func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("no completion choices returned")
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	return content, err
}

// call runs fn with the per-call timeout, rate limiter, circuit breaker,
// and bounded retry: up to 3 attempts with exponential backoff starting
// at the base delay, retried only for connection failures, timeouts, and
// HTTP 429/502/503/504.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			c.logger.Warn("ai service hiccup, retrying",
				"op", op, "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		_, err := c.breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			return nil, fn(callCtx)
		})
		if err == nil {
			return nil
		}

		lastErr = err
		if !retryable(err) {
			return err
		}
	}
	return lastErr
}

// retryable reports whether an upstream error is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 502, 503, 504:
			return true
		}
		return false
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case 429, 502, 503, 504:
			return true
		}
		// A request error without an HTTP status is a transport failure.
		return reqErr.HTTPStatusCode == 0
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
