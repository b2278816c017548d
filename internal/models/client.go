package models

import "time"

// Client is a book holder. Every client belongs to exactly one group and
// owns one portfolio, one watchlist, and one profile. Cross-entity links
// are carried as ids, not pointers; the graph index owns the cycles.
type Client struct {
	ClientID        string    `json:"client_id" badgerhold:"key"`
	Name            string    `json:"name"`
	ClientType      string    `json:"client_type"` // risk_arb, income, macro, event_driven, credit, distressed, growth, ...
	GroupID         string    `json:"group_id" badgerholdIndex:"GroupID"`
	AlertFrequency  string    `json:"alert_frequency,omitempty"` // realtime, daily, weekly
	ImpactThreshold int       `json:"impact_threshold,omitempty"`
	Status          string    `json:"status"` // active, suspended, closed
	Portfolio       Portfolio `json:"portfolio"`
	Watchlist       Watchlist `json:"watchlist"`
	Profile         ClientProfile `json:"profile"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MaxMandateChars bounds mandate free text.
const MaxMandateChars = 5000

// ClientProfile is the mandate and constraint block. MandateThemes is
// validated against the theme vocabulary; MandateEmbedding is persisted as
// a native vector alongside the profile.
type ClientProfile struct {
	MandateType      string       `json:"mandate_type,omitempty"` // growth, income, balanced, absolute_return, ...
	MandateText      string       `json:"mandate_text,omitempty"`
	MandateThemes    []string     `json:"mandate_themes,omitempty"`
	MandateEmbedding []float32    `json:"mandate_embedding,omitempty"`
	Benchmark        string       `json:"benchmark,omitempty"` // index ref
	Horizon          string       `json:"horizon,omitempty"`   // short, medium, long
	ESGConstrained   bool         `json:"esg_constrained,omitempty"`
	Restrictions     Restrictions `json:"restrictions,omitempty"`
	EnrichedAt       *time.Time   `json:"enriched_at,omitempty"`
	// MandateTextHash lets mandate enrichment stay idempotent: re-enrichment
	// only runs when the text actually changed.
	MandateTextHash string `json:"mandate_text_hash,omitempty"`
}

// Restrictions is the sealed constraint schema. No free-form maps; unknown
// restriction kinds are a schema violation at the API boundary.
type Restrictions struct {
	ExcludedCompanies  []string `json:"excluded_companies,omitempty"`
	ExcludedSectors    []string `json:"excluded_sectors,omitempty"`
	ExcludedIndustries []string `json:"excluded_industries,omitempty"`
	ImpactThemes       []string `json:"impact_themes,omitempty"`
	Jurisdictions      []string `json:"jurisdictions,omitempty"`
	MaxConcentration   float64  `json:"max_concentration,omitempty"` // 0-1 position weight cap
}

// Empty reports whether no restriction is set.
func (r *Restrictions) Empty() bool {
	return len(r.ExcludedCompanies) == 0 &&
		len(r.ExcludedSectors) == 0 &&
		len(r.ExcludedIndustries) == 0 &&
		len(r.ImpactThemes) == 0 &&
		len(r.Jurisdictions) == 0 &&
		r.MaxConcentration == 0
}

// Holding is one HOLDS edge of a portfolio. Weight is in [0,1]; the engine
// does not enforce that weights sum to 1.
type Holding struct {
	Ticker  string  `json:"ticker"`
	Weight  float64 `json:"weight"`
	Shares  float64 `json:"shares,omitempty"`
	AvgCost float64 `json:"avg_cost,omitempty"`
}

// Portfolio owns the client's holdings.
type Portfolio struct {
	PortfolioID string    `json:"portfolio_id,omitempty"`
	Holdings    []Holding `json:"holdings,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// WatchItem is one WATCHES edge.
type WatchItem struct {
	Ticker         string  `json:"ticker"`
	AlertThreshold float64 `json:"alert_threshold,omitempty"`
}

// Watchlist owns the client's watched instruments.
type Watchlist struct {
	WatchlistID string      `json:"watchlist_id,omitempty"`
	Items       []WatchItem `json:"items,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at,omitempty"`
}

// HeldTickers returns the portfolio tickers, order preserved.
func (p *Portfolio) HeldTickers() []string {
	tickers := make([]string, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		tickers = append(tickers, h.Ticker)
	}
	return tickers
}

// WatchedTickers returns the watchlist tickers, order preserved.
func (w *Watchlist) WatchedTickers() []string {
	tickers := make([]string, 0, len(w.Items))
	for _, it := range w.Items {
		tickers = append(tickers, it.Ticker)
	}
	return tickers
}

// WeightRankPercentile returns the rank percentile of ticker by portfolio
// weight (1.0 = largest position), or 0 when the ticker is not held.
func (p *Portfolio) WeightRankPercentile(ticker string) float64 {
	if len(p.Holdings) == 0 {
		return 0
	}
	var weight float64
	found := false
	for _, h := range p.Holdings {
		if h.Ticker == ticker {
			weight = h.Weight
			found = true
			break
		}
	}
	if !found {
		return 0
	}
	below := 0
	for _, h := range p.Holdings {
		if h.Weight <= weight {
			below++
		}
	}
	return float64(below) / float64(len(p.Holdings))
}
