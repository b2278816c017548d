package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// scriptedChat returns canned responses in order.
type scriptedChat struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedChat) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func (s *scriptedChat) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not supported")
}
func (s *scriptedChat) HealthCheck(ctx context.Context) error { return nil }
func (s *scriptedChat) Close() error                          { return nil }

const validExtractionJSON = `{
  "events": [{"type": "MERGER_ANNOUNCED", "confidence": 0.95}],
  "instruments": [
    {"ticker": "aapl", "direction": "Positive", "magnitude": 0.6, "confidence": 0.9},
    {"ticker": "MSFT", "direction": "sideways", "magnitude": 1.4, "confidence": 0.5}
  ],
  "companies": ["Apple Inc", "Apple Inc"],
  "regions": ["US"],
  "sectors": ["Technology"],
  "themes": ["m_and_a", "vibes"],
  "summary": "Apple announced a merger.",
  "impact_score": 85
}`

func TestExtract_ParsesAndSanitizes(t *testing.T) {
	chat := &scriptedChat{responses: []string{validExtractionJSON}}
	svc := NewExtractionService(chat, arbor.NewLogger())

	extracted, score, warnings, err := svc.Extract(context.Background(), "Apple merger", "Apple announced...")
	require.NoError(t, err)

	assert.Equal(t, 85, score)
	require.Len(t, extracted.Events, 1)
	assert.Equal(t, "MERGER_ANNOUNCED", extracted.Events[0].Type)

	require.Len(t, extracted.Instruments, 2)
	assert.Equal(t, "AAPL", extracted.Instruments[0].Ticker)
	assert.Equal(t, "positive", extracted.Instruments[0].Direction)
	assert.Equal(t, "neutral", extracted.Instruments[1].Direction, "unknown direction normalized")
	assert.Equal(t, 1.0, extracted.Instruments[1].Magnitude, "magnitude clamped")

	assert.Equal(t, []string{"Apple Inc"}, extracted.Companies, "duplicates removed")
	assert.Equal(t, []string{"m_and_a"}, extracted.Themes, "out-of-vocabulary theme dropped")

	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "vibes")
}

func TestExtract_ToleratesMarkdownFences(t *testing.T) {
	chat := &scriptedChat{responses: []string{"```json\n" + validExtractionJSON + "\n```"}}
	svc := NewExtractionService(chat, arbor.NewLogger())

	extracted, _, _, err := svc.Extract(context.Background(), "t", "c")
	require.NoError(t, err)
	assert.Len(t, extracted.Events, 1)
}

func TestExtract_ReasksOnceThenFails(t *testing.T) {
	chat := &scriptedChat{responses: []string{"not json", "still not json"}}
	svc := NewExtractionService(chat, arbor.NewLogger())

	_, _, _, err := svc.Extract(context.Background(), "t", "c")
	require.Error(t, err)
	assert.Equal(t, models.ErrLLMParseFailed, models.CodeOf(err))
	assert.Equal(t, 2, chat.calls)
}

func TestExtract_ReasksOnceThenSucceeds(t *testing.T) {
	chat := &scriptedChat{responses: []string{"garbage", validExtractionJSON}}
	svc := NewExtractionService(chat, arbor.NewLogger())

	_, score, _, err := svc.Extract(context.Background(), "t", "c")
	require.NoError(t, err)
	assert.Equal(t, 85, score)
}

func TestExtract_DroppedEventTypeWarns(t *testing.T) {
	chat := &scriptedChat{responses: []string{`{
  "events": [{"type": "ALIEN_INVASION", "confidence": 0.9}],
  "instruments": [],
  "summary": "odd",
  "impact_score": 120
}`}}
	svc := NewExtractionService(chat, arbor.NewLogger())

	extracted, score, warnings, err := svc.Extract(context.Background(), "t", "c")
	require.NoError(t, err)
	assert.Empty(t, extracted.Events)
	assert.Equal(t, 100, score, "score clamped to 100")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "ALIEN_INVASION")
}

func TestWithRetries_HonorsProviderDelayHint(t *testing.T) {
	calls := 0
	start := time.Now()
	err := withRetries(context.Background(), 2, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("Error 429: RESOURCE_EXHAUSTED. Please retry in 0.01s.")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Less(t, time.Since(start), initialBackoff, "hinted delay overrides default backoff")
}

func TestWithRetries_NonTransientSurfacesImmediately(t *testing.T) {
	calls := 0
	err := withRetries(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return errors.New("400 invalid request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetries_ExhaustedRateLimitCode(t *testing.T) {
	err := withRetries(context.Background(), 0, func(ctx context.Context) error {
		return errors.New("429 too many requests")
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrLLMRateLimited, models.CodeOf(err))
}

func TestExtractRetryDelay(t *testing.T) {
	d := ExtractRetryDelay(errors.New("Please retry in 45.5s."))
	assert.Equal(t, 45500*time.Millisecond, d)
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("no hint here")))
}

func TestTruncateContent_RuneBoundary(t *testing.T) {
	// "€" occupies bytes 2..4; a limit landing inside it backs off to the
	// previous boundary instead of emitting a broken rune.
	s := "ab€cd"
	assert.Equal(t, "ab", truncateContent(s, 3))
	assert.Equal(t, "ab", truncateContent(s, 4))
	assert.Equal(t, "ab€", truncateContent(s, 5))
	assert.Equal(t, s, truncateContent(s, len(s)))
	assert.Equal(t, s, truncateContent(s, len(s)+10), "short content passes through untouched")
}

func TestTruncateContent_LongMultibyteArticle(t *testing.T) {
	long := strings.Repeat("é", maxExtractionContent)
	cut := truncateContent(long, maxExtractionContent)
	assert.LessOrEqual(t, len(cut), maxExtractionContent)
	assert.True(t, utf8.ValidString(cut))
}
