package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// maxExtractionContent bounds how much article text goes to the model. Long
// filings carry their signal up front; the tail rarely changes extraction.
const maxExtractionContent = 24000

// truncateContent cuts content to at most limit bytes without splitting a
// multi-byte UTF-8 rune at the cut point.
func truncateContent(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

// ExtractionService turns raw article text into a typed enrichment via one
// low-temperature structured-output call. Out-of-vocabulary themes and event
// types are dropped with warnings; instrument directions are normalized.
type ExtractionService struct {
	chat   interfaces.LLMService
	logger arbor.ILogger
}

// NewExtractionService creates the extraction service on top of the gateway.
func NewExtractionService(chat interfaces.LLMService, logger arbor.ILogger) *ExtractionService {
	return &ExtractionService{
		chat:   chat,
		logger: logger,
	}
}

// extractionResponse is the JSON contract with the model.
type extractionResponse struct {
	Events []struct {
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"events"`
	Instruments []struct {
		Ticker     string  `json:"ticker"`
		Direction  string  `json:"direction"`
		Magnitude  float64 `json:"magnitude"`
		Confidence float64 `json:"confidence"`
	} `json:"instruments"`
	Companies   []string `json:"companies"`
	Regions     []string `json:"regions"`
	Sectors     []string `json:"sectors"`
	Themes      []string `json:"themes"`
	Summary     string   `json:"summary"`
	ImpactScore int      `json:"impact_score"`
}

func extractionSystemPrompt() string {
	themes := make([]string, 0, len(models.ThemeVocabulary))
	for theme := range models.ThemeVocabulary {
		themes = append(themes, theme)
	}
	sort.Strings(themes)

	eventTypes := make([]string, 0, len(models.EventVocabulary))
	for eventType := range models.EventVocabulary {
		eventTypes = append(eventTypes, eventType)
	}
	sort.Strings(eventTypes)

	return fmt.Sprintf(`You are a financial news analyst. Extract structured data from the article and respond with ONLY a JSON object, no prose, no markdown fences.

Schema:
{
  "events": [{"type": "<event type>", "confidence": 0.0-1.0}],
  "instruments": [{"ticker": "<exchange ticker>", "direction": "positive|negative|neutral", "magnitude": 0.0-1.0, "confidence": 0.0-1.0}],
  "companies": ["<company name>"],
  "regions": ["<region>"],
  "sectors": ["<sector>"],
  "themes": ["<theme>"],
  "summary": "<one- or two-sentence summary>",
  "impact_score": 0-100
}

Rules:
- "type" must be one of: %s
- "themes" must be from: %s
- Only list instruments the article materially affects. Direction is the expected price effect for holders.
- impact_score reflects market-moving significance: 90+ only for events that move indexes or reprice a large cap severely.
- Omit arrays you have no entries for, or use empty arrays. Never invent tickers.`,
		strings.Join(eventTypes, ", "),
		strings.Join(themes, ", "))
}

// Extract runs one structured-output call and validates the response. The
// returned warnings list dropped out-of-vocabulary values.
func (s *ExtractionService) Extract(ctx context.Context, title, content string) (*models.Extracted, int, []string, error) {
	content = truncateContent(content, maxExtractionContent)

	messages := []interfaces.Message{
		{Role: "system", Content: extractionSystemPrompt()},
		{Role: "user", Content: fmt.Sprintf("Title: %s\n\nArticle:\n%s", title, content)},
	}

	// One re-ask on a malformed response; persistent garbage is a provider
	// fault, not a reason to loop.
	var raw string
	var parsed *extractionResponse
	var parseErr error
	for attempt := 0; attempt < 2; attempt++ {
		var err error
		raw, err = s.chat.Chat(ctx, messages)
		if err != nil {
			return nil, 0, nil, models.WrapServiceError(models.ErrExtractionFailed, "extraction call failed", err)
		}
		parsed, parseErr = parseExtraction(raw)
		if parseErr == nil {
			break
		}
		s.logger.Warn().Err(parseErr).Int("attempt", attempt+1).Msg("Extraction response unparseable, re-asking")
	}
	if parseErr != nil {
		return nil, 0, nil, models.WrapServiceError(models.ErrLLMParseFailed, "extraction response unparseable", parseErr)
	}

	extracted, warnings := sanitizeExtraction(parsed)

	score := parsed.ImpactScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	s.logger.Debug().
		Int("events", len(extracted.Events)).
		Int("instruments", len(extracted.Instruments)).
		Int("impact_score", score).
		Int("warnings", len(warnings)).
		Msg("Extraction completed")

	return extracted, score, warnings, nil
}

// parseExtraction decodes the model output, tolerating markdown fences and
// surrounding prose.
func parseExtraction(raw string) (*extractionResponse, error) {
	cleaned := strings.TrimSpace(raw)
	if idx := strings.Index(cleaned, "{"); idx > 0 {
		cleaned = cleaned[idx:]
	}
	if idx := strings.LastIndex(cleaned, "}"); idx >= 0 {
		cleaned = cleaned[:idx+1]
	}

	var parsed extractionResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("invalid extraction JSON: %w", err)
	}
	return &parsed, nil
}

// sanitizeExtraction enforces the controlled vocabularies and normalizes
// instrument fields.
func sanitizeExtraction(parsed *extractionResponse) (*models.Extracted, []string) {
	var warnings []string

	eventTypes := make([]string, 0, len(parsed.Events))
	confByType := make(map[string]float64, len(parsed.Events))
	for _, ev := range parsed.Events {
		t := strings.ToUpper(strings.TrimSpace(ev.Type))
		eventTypes = append(eventTypes, t)
		if ev.Confidence > confByType[t] {
			confByType[t] = ev.Confidence
		}
	}
	keptEvents, droppedEvents := models.FilterEventTypes(eventTypes)
	for _, d := range droppedEvents {
		warnings = append(warnings, fmt.Sprintf("dropped out-of-vocabulary event type %q", d))
	}
	events := make([]models.ExtractedEvent, 0, len(keptEvents))
	for _, t := range keptEvents {
		events = append(events, models.ExtractedEvent{Type: t, Confidence: clamp01(confByType[t])})
	}

	keptThemes, droppedThemes := models.FilterThemes(normalizeLower(parsed.Themes))
	for _, d := range droppedThemes {
		warnings = append(warnings, fmt.Sprintf("dropped out-of-vocabulary theme %q", d))
	}

	instruments := make([]models.ExtractedInstrument, 0, len(parsed.Instruments))
	seenTickers := make(map[string]bool, len(parsed.Instruments))
	for _, in := range parsed.Instruments {
		ticker := strings.ToUpper(strings.TrimSpace(in.Ticker))
		if ticker == "" || seenTickers[ticker] {
			continue
		}
		seenTickers[ticker] = true
		direction := strings.ToLower(strings.TrimSpace(in.Direction))
		switch direction {
		case "positive", "negative", "neutral":
		default:
			warnings = append(warnings, fmt.Sprintf("normalized unknown direction %q for %s to neutral", in.Direction, ticker))
			direction = "neutral"
		}
		instruments = append(instruments, models.ExtractedInstrument{
			Ticker:     ticker,
			Direction:  direction,
			Magnitude:  clamp01(in.Magnitude),
			Confidence: clamp01(in.Confidence),
		})
	}

	return &models.Extracted{
		Events:      events,
		Instruments: instruments,
		Companies:   dedupeStrings(parsed.Companies),
		Regions:     dedupeStrings(parsed.Regions),
		Sectors:     dedupeStrings(parsed.Sectors),
		Themes:      keptThemes,
		Summary:     strings.TrimSpace(parsed.Summary),
	}, warnings
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func normalizeLower(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
