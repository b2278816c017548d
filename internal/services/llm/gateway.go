package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
)

// Gateway fronts the cloud providers with the cross-cutting controls every
// caller needs: bounded retries with backoff, a provider-call rate limiter,
// and a semaphore capping concurrent in-flight requests. Pipeline and query
// code never talk to the raw provider services.
type Gateway struct {
	chat       interfaces.LLMService
	embed      interfaces.LLMService
	maxRetries int
	timeout    time.Duration
	limiter    *rate.Limiter
	inflight   chan struct{}
	logger     arbor.ILogger
}

// NewGateway wires the Claude chat provider and Gemini embedding provider
// behind one surface.
func NewGateway(config *common.Config, logger arbor.ILogger) (*Gateway, error) {
	chat, err := NewClaudeService(&config.Claude, logger)
	if err != nil {
		return nil, err
	}
	embed, err := NewGeminiService(&config.Gemini, logger)
	if err != nil {
		chat.Close()
		return nil, err
	}
	return newGateway(config, chat, embed, logger)
}

// newGateway is split out so tests can inject fake providers.
func newGateway(config *common.Config, chat, embed interfaces.LLMService, logger arbor.ILogger) (*Gateway, error) {
	interval, err := time.ParseDuration(config.Gemini.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid gemini.rate_limit %q: %w", config.Gemini.RateLimit, err)
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	maxInflight := config.LLM.MaxInflight
	if maxInflight <= 0 {
		maxInflight = 5
	}

	return &Gateway{
		chat:       chat,
		embed:      embed,
		maxRetries: config.LLM.MaxRetries,
		timeout:    common.MustDuration(config.LLM.Timeout),
		limiter:    limiter,
		inflight:   make(chan struct{}, maxInflight),
		logger:     logger,
	}, nil
}

// acquire blocks until an in-flight slot is free or the context ends.
func (g *Gateway) acquire(ctx context.Context) (func(), error) {
	select {
	case g.inflight <- struct{}{}:
		return func() { <-g.inflight }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Chat runs a completion through the chat provider with retries.
func (g *Gateway) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	release, err := g.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var response string
	err = withRetries(ctx, g.maxRetries, func(ctx context.Context) error {
		var callErr error
		response, callErr = g.chat.Chat(ctx, messages)
		return callErr
	})
	return response, err
}

// EmbedBatch embeds texts in provider-sized batches, preserving order.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += interfaces.MaxEmbedBatch {
		end := start + interfaces.MaxEmbedBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := g.embedBatchOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (g *Gateway) embedBatchOnce(ctx context.Context, texts []string) ([][]float32, error) {
	release, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var vectors [][]float32
	err = withRetries(ctx, g.maxRetries, func(ctx context.Context) error {
		var callErr error
		vectors, callErr = g.embed.EmbedBatch(ctx, texts)
		return callErr
	})
	return vectors, err
}

// EmbedQuery embeds one query string.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected one embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// HealthCheck probes both providers.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	if err := g.chat.HealthCheck(ctx); err != nil {
		return err
	}
	return g.embed.HealthCheck(ctx)
}

// Close releases both providers.
func (g *Gateway) Close() error {
	chatErr := g.chat.Close()
	embedErr := g.embed.Close()
	if chatErr != nil {
		return chatErr
	}
	return embedErr
}
