package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/models"
)

func testScorer() *Scorer {
	config := common.DefaultConfig()
	return NewScorer(&config.Query)
}

func TestBaseScore(t *testing.T) {
	assert.Equal(t, 1.0, baseScore(models.ReasonDirectHolding, 0))
	assert.Equal(t, 0.6, baseScore(models.ReasonDirectHolding, 1))
	assert.Equal(t, 0.8, baseScore(models.ReasonWatchlist, 0))
	assert.Equal(t, 0.8, baseScore(models.ReasonWatchlist, 1))
	assert.Equal(t, 0.5, baseScore(models.ReasonThematic, 0))
	assert.Equal(t, 1.0, baseScore(models.ReasonThematic, 1))
	assert.Equal(t, 0.4, baseScore(models.ReasonVector, 0))
	assert.Equal(t, 0.8, baseScore(models.ReasonPeer, 1))
}

func TestVectorActivation_ContinuousRamp(t *testing.T) {
	s := testScorer()
	assert.Equal(t, 0.0, s.vectorActivation(0))
	assert.Equal(t, 0.5, s.vectorActivation(0.5))
	assert.Equal(t, 1.0, s.vectorActivation(1))

	// Monotone with no jump discontinuity.
	prev := -1.0
	for lambda := 0.0; lambda <= 1.0; lambda += 0.01 {
		a := s.vectorActivation(lambda)
		assert.GreaterOrEqual(t, a, prev)
		assert.LessOrEqual(t, a-prev, 0.02, "activation must ramp, not step")
		prev = a
	}
}

func TestRecency_HalfLifeInterpolation(t *testing.T) {
	s := testScorer()

	// At the half-life the decay is exactly one half.
	assert.InDelta(t, 0.5, s.recency(60*time.Minute, 0), 1e-9)
	assert.InDelta(t, 0.5, s.recency(180*time.Minute, 1), 1e-9)

	// A higher lambda keeps older stories warmer.
	assert.Greater(t, s.recency(90*time.Minute, 1), s.recency(90*time.Minute, 0))

	assert.Equal(t, 1.0, s.recency(0, 0))
}

func TestMergeCandidates(t *testing.T) {
	now := time.Now().UTC()
	candidates := []models.Candidate{
		{DocumentID: "d1", Reason: models.ReasonDirectHolding, MatchedTicker: "AAPL", CreatedAt: now, PathCount: 1},
		{DocumentID: "d1", Reason: models.ReasonThematic, MatchedTheme: "ai", PathCount: 1},
		{DocumentID: "d1", Reason: models.ReasonVector, Similarity: 0.88, PathCount: 1},
		{DocumentID: "d2", Reason: models.ReasonWatchlist, MatchedTicker: "TSLA", PathCount: 1},
	}

	mergedSet := mergeCandidates(candidates)
	require.Len(t, mergedSet, 2)

	d1 := mergedSet[0]
	assert.Equal(t, "d1", d1.doc.DocumentID)
	assert.ElementsMatch(t, []models.Reason{models.ReasonDirectHolding, models.ReasonThematic, models.ReasonVector}, d1.reasons)
	assert.Equal(t, 0.88, d1.similarity)
	assert.Equal(t, 3, d1.pathCount)
	assert.True(t, d1.tickers["AAPL"])
}

func TestScore_MultiReasonBaseCapped(t *testing.T) {
	s := testScorer()
	client := &models.Client{}

	m := &merged{
		doc: models.Candidate{CreatedAt: time.Now().UTC()},
		reasons: []models.Reason{
			models.ReasonDirectHolding, // 1.0 at lambda 0
			models.ReasonWatchlist,     // 0.8
			models.ReasonThematic,      // 0.5
		},
		pathCount: 3,
		tickers:   map[string]bool{},
	}

	_, components := s.Score(m, client, 0, time.Now().UTC())
	assert.Equal(t, 1.0, components.Graph, "summed graph base is capped at 1.0")
}

func TestBoosts(t *testing.T) {
	s := testScorer()
	client := &models.Client{
		ClientType: "risk_arb",
		Portfolio: models.Portfolio{Holdings: []models.Holding{
			{Ticker: "AAPL", Weight: 0.30},
			{Ticker: "MSFT", Weight: 0.10},
		}},
	}

	m := &merged{
		doc: models.Candidate{
			EventTypes: []string{"MERGER_ANNOUNCED"},
		},
		reasons:   []models.Reason{models.ReasonDirectHolding, models.ReasonThematic},
		pathCount: 2,
		tickers:   map[string]bool{"AAPL": true},
	}

	total := s.boosts(m, client)

	// Influence 0.1, conviction 0.3 (largest position), event-type 0.1.
	assert.InDelta(t, 0.5, total, 1e-9)

	// The same story for a macro client loses the event-type boost.
	client.ClientType = "macro"
	assert.InDelta(t, 0.4, s.boosts(m, client), 1e-9)
}

func TestConviction_LogarithmicAndCapped(t *testing.T) {
	s := testScorer()
	holdings := make([]models.Holding, 10)
	for i := range holdings {
		holdings[i] = models.Holding{Ticker: string(rune('A' + i)), Weight: float64(i+1) / 100}
	}
	client := &models.Client{Portfolio: models.Portfolio{Holdings: holdings}}

	top := s.boosts(&merged{doc: models.Candidate{}, reasons: []models.Reason{models.ReasonDirectHolding}, pathCount: 1, tickers: map[string]bool{"J": true}}, client)
	small := s.boosts(&merged{doc: models.Candidate{}, reasons: []models.Reason{models.ReasonDirectHolding}, pathCount: 1, tickers: map[string]bool{"A": true}}, client)

	assert.InDelta(t, 0.3, top, 1e-9, "largest position gets the full cap")
	assert.Greater(t, small, 0.0)
	assert.Less(t, small, top)
}

func TestThematicOnly_MonotoneInLambda(t *testing.T) {
	s := testScorer()
	client := &models.Client{}
	now := time.Now().UTC()

	m := &merged{
		doc:       models.Candidate{ImpactScore: 60, CreatedAt: now.Add(-2 * time.Hour)},
		reasons:   []models.Reason{models.ReasonThematic},
		pathCount: 1,
		tickers:   map[string]bool{},
	}

	prev := -1.0
	for lambda := 0.0; lambda <= 1.0001; lambda += 0.05 {
		final, _ := s.Score(m, client, lambda, now)
		assert.GreaterOrEqual(t, final, prev, "thematic-only score must not decrease as lambda rises (lambda=%.2f)", lambda)
		prev = final
	}
}

func TestRank_TieBreak(t *testing.T) {
	s := testScorer()
	client := &models.Client{}
	now := time.Now().UTC()
	created := now.Add(-time.Hour)

	mk := func(id string, at time.Time) *merged {
		return &merged{
			doc:       models.Candidate{DocumentID: id, CreatedAt: at, ImpactScore: 50},
			reasons:   []models.Reason{models.ReasonWatchlist},
			pathCount: 1,
			tickers:   map[string]bool{},
		}
	}

	ranked := s.rank([]*merged{
		mk("doc-b", created),
		mk("doc-a", created),
		mk("doc-c", created.Add(time.Minute)),
	}, client, 0.5, 10, now)

	require.Len(t, ranked, 3)
	assert.Equal(t, "doc-c", ranked[0].DocumentID, "newer document wins the tie")
	assert.Equal(t, "doc-a", ranked[1].DocumentID, "equal timestamps fall back to id order")
	assert.Equal(t, "doc-b", ranked[2].DocumentID)
}

func TestRank_TrimsToK(t *testing.T) {
	s := testScorer()
	now := time.Now().UTC()
	var set []*merged
	for _, id := range []string{"a", "b", "c", "d"} {
		set = append(set, &merged{
			doc:       models.Candidate{DocumentID: id, CreatedAt: now},
			reasons:   []models.Reason{models.ReasonThematic},
			pathCount: 1,
			tickers:   map[string]bool{},
		})
	}
	ranked := s.rank(set, &models.Client{}, 0, 2, now)
	assert.Len(t, ranked, 2)
}

func TestApplyRestrictions(t *testing.T) {
	candidates := []models.Candidate{
		{DocumentID: "keep", Companies: []string{"Apple Inc"}, Sectors: []string{"technology"}},
		{DocumentID: "excluded-company", Companies: []string{"Shell PLC"}},
		{DocumentID: "excluded-sector", Sectors: []string{"Tobacco"}},
	}
	restrictions := &models.Restrictions{
		ExcludedCompanies: []string{"shell plc"},
		ExcludedSectors:   []string{"tobacco"},
	}

	kept := applyRestrictions(candidates, restrictions)
	require.Len(t, kept, 1)
	assert.Equal(t, "keep", kept[0].DocumentID)
}

func TestWhyItMattersBase(t *testing.T) {
	m := &merged{
		doc:     models.Candidate{MatchedTicker: "AAPL"},
		reasons: []models.Reason{models.ReasonDirectHolding, models.ReasonThematic},
		tickers: map[string]bool{"AAPL": true},
	}
	assert.Equal(t, "Directly affects held position AAPL (+1 more signals)", whyItMattersBase(m))

	thematic := &merged{
		doc:     models.Candidate{MatchedTheme: "clean_energy"},
		reasons: []models.Reason{models.ReasonThematic},
		tickers: map[string]bool{},
	}
	assert.Equal(t, "Matches mandate theme clean_energy", whyItMattersBase(thematic))
}
