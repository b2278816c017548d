package interfaces

import (
	"context"

	"github.com/finwire/finwire/internal/models"
)

// Message represents a single message in a chat conversation.
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// MaxEmbedBatch bounds one embedding call.
const MaxEmbedBatch = 100

// LLMService is the provider-facing surface: chat completions for
// structured extraction and batch embeddings for the vector index.
// Implementations wrap cloud APIs; the gateway adds retry, rate limiting,
// and bounded concurrency on top.
type LLMService interface {
	// Chat generates a completion for the conversation history. The
	// messages slice carries system prompts, user messages, and previous
	// assistant turns in chronological order.
	Chat(ctx context.Context, messages []Message) (string, error)

	// EmbedBatch generates one embedding per input text. len(texts) must
	// not exceed MaxEmbedBatch; the result preserves input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// HealthCheck verifies the provider is reachable and authenticated.
	HealthCheck(ctx context.Context) error

	// Close releases provider resources.
	Close() error
}

// ExtractionService turns raw article text into a typed, vocabulary-clean
// enrichment.
type ExtractionService interface {
	// Extract runs one low-temperature structured-output call and
	// validates the response against the extraction schema. Returned
	// warnings list dropped out-of-vocabulary values.
	Extract(ctx context.Context, title, content string) (*models.Extracted, int, []string, error)
}

// EmbeddingService produces vectors for pipeline and query use.
type EmbeddingService interface {
	// EmbedBatch embeds texts in provider-sized batches, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds one query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
