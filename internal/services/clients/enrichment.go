package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
	"github.com/finwire/finwire/internal/services/dedup"
)

// Enricher turns mandate free text into vocabulary themes and a persisted
// mandate embedding. Enrichment is idempotent on the mandate text hash:
// unchanged text is never re-extracted or re-embedded.
type Enricher struct {
	chat     interfaces.LLMService
	embedder interfaces.EmbeddingService
	logger   arbor.ILogger
}

// NewEnricher creates the mandate enricher.
func NewEnricher(chat interfaces.LLMService, embedder interfaces.EmbeddingService, logger arbor.ILogger) *Enricher {
	return &Enricher{chat: chat, embedder: embedder, logger: logger}
}

func themeExtractionPrompt() string {
	themes := make([]string, 0, len(models.ThemeVocabulary))
	for theme := range models.ThemeVocabulary {
		themes = append(themes, theme)
	}
	sort.Strings(themes)
	return fmt.Sprintf(`You classify an investment mandate into themes. Respond with a JSON array of theme strings drawn ONLY from this list:
%s
Return [] when nothing applies. No prose, JSON only.`, strings.Join(themes, ", "))
}

// EnrichMandate populates MandateThemes, MandateEmbedding, MandateTextHash,
// and EnrichedAt on the client's profile in place. The caller persists.
func (e *Enricher) EnrichMandate(ctx context.Context, client *models.Client) error {
	text := strings.TrimSpace(client.Profile.MandateText)
	if text == "" {
		client.Profile.MandateThemes = nil
		client.Profile.MandateEmbedding = nil
		client.Profile.MandateTextHash = ""
		client.Profile.EnrichedAt = nil
		return nil
	}

	hash := dedup.ContentHash(text)
	if hash == client.Profile.MandateTextHash && len(client.Profile.MandateEmbedding) > 0 {
		return nil
	}

	themes, err := e.extractThemes(ctx, text)
	if err != nil {
		return err
	}
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	client.Profile.MandateThemes = themes
	client.Profile.MandateEmbedding = vector
	client.Profile.MandateTextHash = hash
	client.Profile.EnrichedAt = &now

	e.logger.Info().
		Str("client_id", client.ClientID).
		Int("themes", len(themes)).
		Int("dimensions", len(vector)).
		Msg("Mandate enriched")
	return nil
}

// extractThemes asks the chat model for vocabulary themes and drops
// anything outside the closed set.
func (e *Enricher) extractThemes(ctx context.Context, mandateText string) ([]string, error) {
	reply, err := e.chat.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: themeExtractionPrompt()},
		{Role: "user", Content: mandateText},
	})
	if err != nil {
		return nil, err
	}

	raw := reply
	if start := strings.Index(raw, "["); start >= 0 {
		if end := strings.LastIndex(raw, "]"); end > start {
			raw = raw[start : end+1]
		}
	}
	var themes []string
	if err := json.Unmarshal([]byte(raw), &themes); err != nil {
		return nil, models.WrapServiceError(models.ErrLLMParseFailed, "theme extraction returned unparseable output", err)
	}

	for i := range themes {
		themes[i] = strings.ToLower(strings.TrimSpace(themes[i]))
	}
	kept, dropped := models.FilterThemes(themes)
	if len(dropped) > 0 {
		e.logger.Debug().Strs("dropped", dropped).Msg("Out-of-vocabulary themes dropped")
	}
	return kept, nil
}
