package clients

import (
	"strings"

	"github.com/finwire/finwire/internal/models"
)

// Completeness weights. Holdings dominate because the feed's strongest
// signal paths start from the portfolio.
const (
	weightHoldings       = 0.35
	weightMandateType    = 0.175
	weightMandateText    = 0.175
	weightConstraints    = 0.20
	weightWatchlist      = 0.05
	weightAlertFrequency = 0.05
)

// CompletenessReport is the deterministic profile completeness breakdown.
type CompletenessReport struct {
	Score         float64            `json:"score"`
	Components    map[string]float64 `json:"components"`
	MissingFields []string           `json:"missing_fields,omitempty"`
}

// Completeness scores how much of the profile the feed can actually use.
// Engagement (watchlist + alert cadence) carries the remaining 10%.
func Completeness(client *models.Client) CompletenessReport {
	components := make(map[string]float64, 6)
	var missing []string

	score := func(name string, weight float64, populated bool) {
		if populated {
			components[name] = weight
		} else {
			components[name] = 0
			missing = append(missing, name)
		}
	}

	score("holdings", weightHoldings, len(client.Portfolio.Holdings) > 0)
	score("mandate_type", weightMandateType, strings.TrimSpace(client.Profile.MandateType) != "")
	score("mandate_text", weightMandateText, strings.TrimSpace(client.Profile.MandateText) != "")
	score("restrictions", weightConstraints, !client.Profile.Restrictions.Empty())
	score("watchlist", weightWatchlist, len(client.Watchlist.Items) > 0)
	score("alert_frequency", weightAlertFrequency, client.AlertFrequency != "")

	total := 0.0
	for _, v := range components {
		total += v
	}
	return CompletenessReport{
		Score:         total,
		Components:    components,
		MissingFields: missing,
	}
}
