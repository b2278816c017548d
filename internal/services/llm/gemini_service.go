package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
)

// GeminiService implements the embedding side of LLMService using the
// Google genai client.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
}

// NewGeminiService creates a new Gemini embedding service instance.
func NewGeminiService(geminiConfig *common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	if geminiConfig.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required (set GOOGLE_API_KEY or gemini.api_key in config)")
	}

	if geminiConfig.EmbedModel == "" {
		geminiConfig.EmbedModel = "gemini-embedding-001"
	}
	if geminiConfig.EmbedDimension <= 0 {
		geminiConfig.EmbedDimension = 768
	}

	timeout, err := time.ParseDuration(geminiConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", geminiConfig.Timeout, err)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:  geminiConfig,
		logger:  logger,
		client:  client,
		timeout: timeout,
	}

	logger.Debug().
		Str("embed_model", geminiConfig.EmbedModel).
		Int("embed_dimension", geminiConfig.EmbedDimension).
		Dur("timeout", timeout).
		Msg("Gemini embedding service initialized")

	return service, nil
}

// Chat is not supported by the Gemini provider in this deployment.
func (s *GeminiService) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	return "", fmt.Errorf("Gemini provider does not serve chat in this deployment")
}

// EmbedBatch generates one embedding per input text, preserving order.
func (s *GeminiService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > interfaces.MaxEmbedBatch {
		return nil, fmt.Errorf("batch of %d exceeds provider limit %d", len(texts), interfaces.MaxEmbedBatch)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outputDim := int32(s.config.EmbedDimension)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("text cannot be empty for embedding generation")
		}
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	startTime := time.Now()
	result, err := s.client.Models.EmbedContent(timeoutCtx, s.config.EmbedModel, contents, embeddingConfig)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), got)
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		if len(emb.Values) != s.config.EmbedDimension {
			return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.config.EmbedDimension, len(emb.Values))
		}
		vectors[i] = emb.Values
	}

	s.logger.Debug().
		Int("batch_size", len(texts)).
		Int("dimension", s.config.EmbedDimension).
		Dur("duration", time.Since(startTime)).
		Msg("Embedding batch completed")

	return vectors, nil
}

// HealthCheck verifies the embedding model is reachable and authenticated.
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	healthCheckCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	vectors, err := s.EmbedBatch(healthCheckCtx, []string{"health check"})
	if err != nil {
		return fmt.Errorf("Gemini health check failed: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return fmt.Errorf("embedding probe returned empty vector")
	}
	return nil
}

// Close releases resources.
func (s *GeminiService) Close() error {
	s.logger.Debug().Msg("Closing Gemini embedding service")
	return nil
}
