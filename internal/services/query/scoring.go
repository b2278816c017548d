package query

import (
	"math"
	"sort"
	"time"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/models"
)

// Scorer blends graph, vector, impact, and recency components under the
// opportunity bias lambda. Graph and vector terms are additive; the vector
// term is gated continuously in lambda so rankings stay monotone.
type Scorer struct {
	weightGraph    float64
	weightSemantic float64
	weightImpact   float64
	weightRecency  float64
	activation     float64 // lambda midpoint of the vector gate
	halfLifeMin    float64 // recency half-life at lambda=0, minutes
	halfLifeMax    float64 // recency half-life at lambda=1, minutes
}

// NewScorer creates a scorer from the query configuration.
func NewScorer(config *common.QueryConfig) *Scorer {
	return &Scorer{
		weightGraph:    config.WeightGraph,
		weightSemantic: config.WeightSemantic,
		weightImpact:   config.WeightImpact,
		weightRecency:  config.WeightRecency,
		activation:     config.VectorActivationThreshold,
		halfLifeMin:    float64(config.RecencyHalfLifeMinDefense),
		halfLifeMax:    float64(config.RecencyHalfLifeMinOffense),
	}
}

// baseScore interpolates the per-reason base on lambda.
func baseScore(reason models.Reason, lambda float64) float64 {
	switch reason {
	case models.ReasonDirectHolding:
		return 1.0 - 0.4*lambda
	case models.ReasonWatchlist:
		return 0.8
	case models.ReasonThematic:
		return 0.5 + 0.5*lambda
	case models.ReasonVector, models.ReasonPeer, models.ReasonSupplier, models.ReasonCompetitor:
		return 0.4 + 0.4*lambda
	}
	return 0
}

// vectorActivation is the continuous gate on the vector path: a linear
// ramp from 0 at lambda=0 to 1 at twice the configured midpoint. The hard
// step it replaces caused a ranking discontinuity near lambda 0.75.
func (s *Scorer) vectorActivation(lambda float64) float64 {
	if s.activation <= 0 {
		return 1
	}
	a := lambda / (2 * s.activation)
	if a > 1 {
		return 1
	}
	if a < 0 {
		return 0
	}
	return a
}

// halfLife interpolates the recency half-life in minutes.
func (s *Scorer) halfLife(lambda float64) float64 {
	return s.halfLifeMin + (s.halfLifeMax-s.halfLifeMin)*lambda
}

// recency decays exponentially with the lambda-interpolated half-life.
func (s *Scorer) recency(age time.Duration, lambda float64) float64 {
	ageMin := age.Minutes()
	if ageMin <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * ageMin / s.halfLife(lambda))
}

// merged is one document with every reason that reached it.
type merged struct {
	doc        models.Candidate
	reasons    []models.Reason
	similarity float64
	pathCount  int
	tickers    map[string]bool // matched held/watched tickers for conviction
}

// mergeCandidates collapses per-path candidates by document id.
func mergeCandidates(candidates []models.Candidate) []*merged {
	byDoc := make(map[string]*merged, len(candidates))
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		m, ok := byDoc[c.DocumentID]
		if !ok {
			m = &merged{doc: c, tickers: make(map[string]bool)}
			byDoc[c.DocumentID] = m
			order = append(order, c.DocumentID)
		}
		if !hasReason(m.reasons, c.Reason) {
			m.reasons = append(m.reasons, c.Reason)
		}
		if c.Similarity > m.similarity {
			m.similarity = c.Similarity
		}
		if c.MatchedTicker != "" && (c.Reason == models.ReasonDirectHolding || c.Reason == models.ReasonWatchlist) {
			m.tickers[c.MatchedTicker] = true
		}
		m.pathCount += max(c.PathCount, 1)
	}

	out := make([]*merged, 0, len(byDoc))
	for _, id := range order {
		out = append(out, byDoc[id])
	}
	return out
}

func hasReason(reasons []models.Reason, r models.Reason) bool {
	for _, existing := range reasons {
		if existing == r {
			return true
		}
	}
	return false
}

// Score computes the final blended score for one merged candidate.
func (s *Scorer) Score(m *merged, client *models.Client, lambda float64, now time.Time) (float64, models.ComponentScores) {
	// Graph term: capped sum of the non-vector reason bases.
	graph := 0.0
	for _, reason := range m.reasons {
		if reason == models.ReasonVector {
			continue
		}
		graph += baseScore(reason, lambda)
	}
	if graph > 1 {
		graph = 1
	}

	// Vector term: similarity scaled by the reason base, gated in lambda.
	vector := 0.0
	if hasReason(m.reasons, models.ReasonVector) {
		vector = s.vectorActivation(lambda) * baseScore(models.ReasonVector, lambda) * m.similarity
	}

	boosts := s.boosts(m, client)
	impact := float64(m.doc.ImpactScore) / 100
	recency := s.recency(now.Sub(m.doc.CreatedAt), lambda)

	final := s.weightGraph*graph +
		s.weightSemantic*vector +
		s.weightImpact*impact +
		s.weightRecency*recency +
		boosts

	return final, models.ComponentScores{
		Graph:   graph,
		Vector:  vector,
		Impact:  impact,
		Recency: recency,
		Boosts:  boosts,
	}
}

// boosts sums the additive adjustments: convergent-path influence,
// position conviction, and client-class event-type match.
func (s *Scorer) boosts(m *merged, client *models.Client) float64 {
	total := 0.0

	if m.pathCount > 1 {
		total += 0.1 * float64(m.pathCount-1)
	}

	// Position conviction: logarithmic in the weight rank percentile of the
	// largest matched held position, capped at 0.3.
	best := 0.0
	for ticker := range m.tickers {
		if p := client.Portfolio.WeightRankPercentile(ticker); p > best {
			best = p
		}
	}
	if best > 0 {
		conviction := 0.3 * math.Log10(1+9*best)
		if conviction > 0.3 {
			conviction = 0.3
		}
		total += conviction
	}

	// Event-type boost for classes the event speaks to (M&A for risk arb,
	// downgrades for credit, and so on).
	if client.ClientType != "" {
	eventLoop:
		for _, eventType := range m.doc.EventTypes {
			info, ok := models.EventVocabulary[eventType]
			if !ok {
				continue
			}
			for _, class := range info.MatchesClasses {
				if class == client.ClientType {
					total += 0.1
					break eventLoop
				}
			}
		}
	}

	return total
}

// rank scores, sorts, and trims the merged set. Ties break by
// (created_at desc, document_id asc) so results are deterministic.
func (s *Scorer) rank(mergedSet []*merged, client *models.Client, lambda float64, k int, now time.Time) []models.RankedArticle {
	articles := make([]models.RankedArticle, 0, len(mergedSet))
	for _, m := range mergedSet {
		final, components := s.Score(m, client, lambda, now)
		articles = append(articles, models.RankedArticle{
			DocumentID:       m.doc.DocumentID,
			Title:            m.doc.Title,
			Summary:          m.doc.Summary,
			CreatedAt:        m.doc.CreatedAt,
			ImpactScore:      m.doc.ImpactScore,
			ImpactTier:       m.doc.ImpactTier,
			FinalScore:       final,
			Reasons:          m.reasons,
			ComponentScores:  components,
			WhyItMattersBase: whyItMattersBase(m),
		})
	}

	sort.Slice(articles, func(i, j int) bool {
		if articles[i].FinalScore != articles[j].FinalScore {
			return articles[i].FinalScore > articles[j].FinalScore
		}
		if !articles[i].CreatedAt.Equal(articles[j].CreatedAt) {
			return articles[i].CreatedAt.After(articles[j].CreatedAt)
		}
		return articles[i].DocumentID < articles[j].DocumentID
	})

	if len(articles) > k {
		articles = articles[:k]
	}
	return articles
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
