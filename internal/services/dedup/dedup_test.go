package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

func TestNormalizeContent(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"casing and spacing", "Fed  Holds\tRates   STEADY", "fed holds rates steady"},
		{"punctuation stripped", "Apple, Inc. beats: earnings!", "apple inc beats earnings"},
		{"leading and trailing", "  hello world  ", "hello world"},
		{"symbols collapse to one space", "up 5% -- strong", "up 5 strong"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeContent(tc.in))
		})
	}
}

func TestContentHash_InvariantUnderFormatting(t *testing.T) {
	a := ContentHash("Apple beats earnings estimates.")
	b := ContentHash("  apple   BEATS earnings,  estimates!  ")
	assert.Equal(t, a, b)

	c := ContentHash("Apple misses earnings estimates.")
	assert.NotEqual(t, a, c)
}

func TestStoryFingerprint(t *testing.T) {
	day := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	a := &models.Extracted{
		Instruments: []models.ExtractedInstrument{{Ticker: "msft"}, {Ticker: "AAPL"}},
		Events:      []models.ExtractedEvent{{Type: "MERGER_ANNOUNCED", Confidence: 0.9}},
	}
	b := &models.Extracted{
		Instruments: []models.ExtractedInstrument{{Ticker: "AAPL"}, {Ticker: "MSFT"}, {Ticker: "aapl"}},
		Events: []models.ExtractedEvent{
			{Type: "PRODUCT_LAUNCH", Confidence: 0.2},
			{Type: "MERGER_ANNOUNCED", Confidence: 0.9},
		},
	}
	assert.Equal(t, StoryFingerprint(a, day), StoryFingerprint(b, day),
		"ticker order, casing, and low-confidence events do not change the fingerprint")

	c := &models.Extracted{
		Instruments: []models.ExtractedInstrument{{Ticker: "AAPL"}},
		Events:      []models.ExtractedEvent{{Type: "MERGER_ANNOUNCED", Confidence: 0.9}},
	}
	assert.NotEqual(t, StoryFingerprint(a, day), StoryFingerprint(c, day))

	assert.Empty(t, StoryFingerprint(&models.Extracted{}, day), "no tickers, no fingerprint")
}

func TestStoryFingerprint_DateTerm(t *testing.T) {
	story := &models.Extracted{
		Instruments: []models.ExtractedInstrument{{Ticker: "AAPL"}},
		Events:      []models.ExtractedEvent{{Type: "GUIDANCE_RAISED", Confidence: 0.8}},
	}

	monday := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	tuesday := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	assert.NotEqual(t, StoryFingerprint(story, monday), StoryFingerprint(story, tuesday),
		"identical ticker and event on different days are distinct stories")

	mondayEvening := time.Date(2026, 3, 9, 22, 45, 0, 0, time.UTC)
	assert.Equal(t, StoryFingerprint(story, monday), StoryFingerprint(story, mondayEvening),
		"time of day within the same UTC date does not split the fingerprint")

	// 2026-03-10 01:00 in UTC+2 is still 2026-03-09 in UTC.
	offset := time.FixedZone("UTC+2", 2*3600)
	tuesdayLocal := time.Date(2026, 3, 10, 1, 0, 0, 0, offset)
	assert.Equal(t, StoryFingerprint(story, monday), StoryFingerprint(story, tuesdayLocal),
		"date term is taken in UTC regardless of the source timezone")
}

// fakeGraph covers the dedup lookups.
type fakeGraph struct {
	interfaces.GraphStorage
	hashes       map[string]string // group+hash -> doc
	fingerprints map[string]string
	lastSince    time.Time
}

func (g *fakeGraph) LookupContentHash(ctx context.Context, groupID, contentHash string, since time.Time) (string, bool, error) {
	g.lastSince = since
	id, ok := g.hashes[groupID+"/"+contentHash]
	return id, ok, nil
}

func (g *fakeGraph) LookupFingerprint(ctx context.Context, groupID, fingerprint string, since time.Time) (string, bool, error) {
	g.lastSince = since
	id, ok := g.fingerprints[groupID+"/"+fingerprint]
	return id, ok, nil
}

type fakeVector struct {
	interfaces.VectorStorage
	matches []models.VectorMatch
	filter  models.VectorFilter
}

func (v *fakeVector) Search(ctx context.Context, vector []float32, k int, filter models.VectorFilter) ([]models.VectorMatch, error) {
	v.filter = filter
	return v.matches, nil
}

func newTestDetector(graph *fakeGraph, vector *fakeVector) *Detector {
	config := common.DefaultConfig()
	return NewDetector(config, graph, vector, arbor.NewLogger())
}

func TestCheckHash(t *testing.T) {
	graph := &fakeGraph{hashes: map[string]string{"fund-alpha/h1": "doc-1"}}
	d := newTestDetector(graph, &fakeVector{})
	ctx := context.Background()

	dup, err := d.CheckHash(ctx, "fund-alpha", "h1")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, models.DupTierHash, dup.Tier)
	assert.Equal(t, "doc-1", dup.DocumentID)
	assert.Equal(t, 1.0, dup.Score)
	assert.True(t, graph.lastSince.IsZero(), "default hash window is unbounded")

	dup, err = d.CheckHash(ctx, "fund-beta", "h1")
	require.NoError(t, err)
	assert.Nil(t, dup, "hash match is group-scoped")
}

func TestCheckFingerprint(t *testing.T) {
	graph := &fakeGraph{fingerprints: map[string]string{"fund-alpha/f1": "doc-2"}}
	d := newTestDetector(graph, &fakeVector{})
	ctx := context.Background()

	dup, err := d.CheckFingerprint(ctx, "fund-alpha", "f1")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, models.DupTierFingerprint, dup.Tier)
	assert.False(t, graph.lastSince.IsZero(), "fingerprint window is bounded")

	dup, err = d.CheckFingerprint(ctx, "fund-alpha", "")
	require.NoError(t, err)
	assert.Nil(t, dup, "empty fingerprint never matches")
}

func TestCheckSemantic(t *testing.T) {
	vector := &fakeVector{matches: []models.VectorMatch{
		{DocumentID: "doc-3", Similarity: 0.91},
	}}
	d := newTestDetector(&fakeGraph{}, vector)
	ctx := context.Background()

	dup, err := d.CheckSemantic(ctx, "fund-alpha", []float32{0.1, 0.2}, "doc-new")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, models.DupTierSemantic, dup.Tier)
	assert.Equal(t, 0.91, dup.Score)
	assert.Equal(t, []string{"fund-alpha"}, vector.filter.Groups)
	assert.Equal(t, "doc-new", vector.filter.ExcludeDocID)
}

func TestCheckSemantic_BelowThreshold(t *testing.T) {
	vector := &fakeVector{matches: []models.VectorMatch{
		{DocumentID: "doc-3", Similarity: 0.71},
	}}
	d := newTestDetector(&fakeGraph{}, vector)

	dup, err := d.CheckSemantic(context.Background(), "fund-alpha", []float32{0.1}, "")
	require.NoError(t, err)
	assert.Nil(t, dup, "0.71 is below the 0.85 threshold")
}
