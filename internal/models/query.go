package models

import "time"

// Reason tags the provenance of a feed candidate.
type Reason string

const (
	ReasonDirectHolding Reason = "DIRECT_HOLDING"
	ReasonWatchlist     Reason = "WATCHLIST"
	ReasonThematic      Reason = "THEMATIC"
	ReasonVector        Reason = "VECTOR"
	ReasonPeer          Reason = "PEER"
	ReasonSupplier      Reason = "SUPPLIER"
	ReasonCompetitor    Reason = "COMPETITOR"
)

// Candidate is one document emitted by a candidate-generation path before
// scoring. The same document may arrive via several paths; the scorer
// merges them by DocumentID.
type Candidate struct {
	DocumentID string
	GroupID    string
	CreatedAt  time.Time
	ImpactScore int
	ImpactTier string
	Title      string
	Summary    string
	Tickers    []string
	Companies  []string
	Sectors    []string
	Themes     []string
	EventTypes []string
	Reason     Reason
	// Reason-specific signals.
	MatchedTicker string  // holding/watchlist/lateral candidate
	MatchedTheme  string  // thematic candidate
	Similarity    float64 // vector candidate
	PathCount     int     // distinct portfolio links that reached this doc
}

// ComponentScores exposes the scoring breakdown for explainability.
type ComponentScores struct {
	Graph   float64 `json:"graph"`
	Vector  float64 `json:"vector"`
	Impact  float64 `json:"impact"`
	Recency float64 `json:"recency"`
	Boosts  float64 `json:"boosts"`
}

// RankedArticle is one entry of the final ranked feed.
type RankedArticle struct {
	DocumentID       string          `json:"document_id"`
	Title            string          `json:"title"`
	Summary          string          `json:"summary,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ImpactScore      int             `json:"impact_score"`
	ImpactTier       string          `json:"impact_tier"`
	FinalScore       float64         `json:"final_score"`
	Reasons          []Reason        `json:"reasons"`
	ComponentScores  ComponentScores `json:"component_scores"`
	WhyItMattersBase string          `json:"why_it_matters_base"`
}

// FeedOptions tunes a per-client feed query.
type FeedOptions struct {
	K                   int      `json:"k,omitempty"`
	TimeWindowHours     int      `json:"time_window_hours,omitempty"`
	MinImpactScore      int      `json:"min_impact_score,omitempty"`
	ImpactTiers         []string `json:"impact_tiers,omitempty"`
	IncludePortfolio    *bool    `json:"include_portfolio,omitempty"`
	IncludeWatchlist    *bool    `json:"include_watchlist,omitempty"`
	IncludeLateralGraph *bool    `json:"include_lateral_graph,omitempty"`
	OpportunityBias     float64  `json:"opportunity_bias,omitempty"` // λ in [0,1], 0 = defensive
}

// SearchOptions tunes a group-scoped free-text document search.
type SearchOptions struct {
	K              int      `json:"k,omitempty"`
	TimeWindowHours int     `json:"time_window_hours,omitempty"`
	MinImpactScore int      `json:"min_impact_score,omitempty"`
	ImpactTiers    []string `json:"impact_tiers,omitempty"`
}

// SearchResult is one entry of a free-text search response.
type SearchResult struct {
	DocumentID  string    `json:"document_id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ImpactScore int       `json:"impact_score"`
	ImpactTier  string    `json:"impact_tier"`
	Score       float64   `json:"score"`
	Matches     []string  `json:"matches,omitempty"` // which paths matched: vector, theme, entity
}
