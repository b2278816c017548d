package models

// Controlled vocabularies. Themes and event types form closed sets; values
// outside them are dropped at ingest with a warning rather than stored.

// ThemeVocabulary is the closed set of theme tags shared by documents and
// client mandates.
var ThemeVocabulary = map[string]bool{
	"ai":             true,
	"buybacks":       true,
	"china":          true,
	"clean_energy":   true,
	"commodities":    true,
	"consumer":       true,
	"credit":         true,
	"crypto":         true,
	"defense":        true,
	"dividends":      true,
	"earnings":       true,
	"energy":         true,
	"esg":            true,
	"geopolitics":    true,
	"healthcare":     true,
	"housing":        true,
	"inflation":      true,
	"ipo":            true,
	"labor_market":   true,
	"litigation":     true,
	"m_and_a":        true,
	"policy":         true,
	"rates":          true,
	"regulation":     true,
	"semiconductors": true,
	"supply_chain":   true,
}

// EventTypeInfo carries the scoring attributes of a controlled event type.
type EventTypeInfo struct {
	BaseImpact     int      `json:"base_impact"`     // 0-100
	DefaultTier    string   `json:"default_tier"`    // tier used when the model omits one
	DecayHalfLife  float64  `json:"decay_half_life"` // hours
	MatchesClasses []string `json:"matches_classes"` // client classes that get the event-type boost
}

// EventVocabulary is the closed set of event types with their scoring
// attributes.
var EventVocabulary = map[string]EventTypeInfo{
	"EARNINGS_BEAT":         {BaseImpact: 55, DefaultTier: TierSilver, DecayHalfLife: 12},
	"EARNINGS_MISS":         {BaseImpact: 60, DefaultTier: TierSilver, DecayHalfLife: 12},
	"GUIDANCE_RAISE":        {BaseImpact: 65, DefaultTier: TierGold, DecayHalfLife: 24},
	"GUIDANCE_CUT":          {BaseImpact: 70, DefaultTier: TierGold, DecayHalfLife: 24},
	"MERGER_ANNOUNCED":      {BaseImpact: 85, DefaultTier: TierGold, DecayHalfLife: 72, MatchesClasses: []string{"risk_arb", "event_driven"}},
	"ACQUISITION_COMPLETED": {BaseImpact: 60, DefaultTier: TierSilver, DecayHalfLife: 48, MatchesClasses: []string{"risk_arb", "event_driven"}},
	"REGULATORY_ACTION":     {BaseImpact: 70, DefaultTier: TierGold, DecayHalfLife: 48},
	"PRODUCT_LAUNCH":        {BaseImpact: 40, DefaultTier: TierBronze, DecayHalfLife: 24},
	"EXECUTIVE_CHANGE":      {BaseImpact: 45, DefaultTier: TierBronze, DecayHalfLife: 24},
	"DIVIDEND_CHANGE":       {BaseImpact: 50, DefaultTier: TierSilver, DecayHalfLife: 24, MatchesClasses: []string{"income"}},
	"STOCK_SPLIT":           {BaseImpact: 30, DefaultTier: TierBronze, DecayHalfLife: 24},
	"CREDIT_DOWNGRADE":      {BaseImpact: 75, DefaultTier: TierGold, DecayHalfLife: 48, MatchesClasses: []string{"credit"}},
	"CREDIT_UPGRADE":        {BaseImpact: 55, DefaultTier: TierSilver, DecayHalfLife: 48, MatchesClasses: []string{"credit"}},
	"LITIGATION_FILED":      {BaseImpact: 50, DefaultTier: TierSilver, DecayHalfLife: 48},
	"BANKRUPTCY":            {BaseImpact: 95, DefaultTier: TierPlatinum, DecayHalfLife: 96, MatchesClasses: []string{"credit", "distressed"}},
	"SHARE_BUYBACK":         {BaseImpact: 45, DefaultTier: TierBronze, DecayHalfLife: 24},
	"CAPACITY_EXPANSION":    {BaseImpact: 35, DefaultTier: TierBronze, DecayHalfLife: 48},
	"SUPPLY_DISRUPTION":     {BaseImpact: 65, DefaultTier: TierGold, DecayHalfLife: 36},
	"MACRO_DATA":            {BaseImpact: 50, DefaultTier: TierSilver, DecayHalfLife: 8},
	"CENTRAL_BANK_DECISION": {BaseImpact: 80, DefaultTier: TierGold, DecayHalfLife: 24, MatchesClasses: []string{"macro"}},
}

// IsTheme reports whether value is a member of the theme vocabulary.
func IsTheme(value string) bool {
	return ThemeVocabulary[value]
}

// IsEventType reports whether value is a member of the event vocabulary.
func IsEventType(value string) bool {
	_, ok := EventVocabulary[value]
	return ok
}

// FilterThemes splits values into vocabulary members and dropped
// out-of-vocabulary entries, preserving input order and removing duplicates.
func FilterThemes(values []string) (kept, dropped []string) {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		if IsTheme(v) {
			kept = append(kept, v)
		} else {
			dropped = append(dropped, v)
		}
	}
	return kept, dropped
}

// FilterEventTypes splits values into vocabulary members and dropped
// out-of-vocabulary entries, preserving input order and removing duplicates.
func FilterEventTypes(values []string) (kept, dropped []string) {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		if IsEventType(v) {
			kept = append(kept, v)
		} else {
			dropped = append(dropped, v)
		}
	}
	return kept, dropped
}
