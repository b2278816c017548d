package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// lateralDepth bounds the peer/supplier/competitor traversal.
const lateralDepth = 2

func candidateFromHit(hit interfaces.DocumentHit, reason models.Reason) models.Candidate {
	return models.Candidate{
		DocumentID:    hit.Node.DocumentID,
		GroupID:       hit.Node.GroupID,
		CreatedAt:     hit.Node.CreatedAt,
		ImpactScore:   hit.Node.ImpactScore,
		ImpactTier:    hit.Node.ImpactTier,
		Title:         hit.Node.Title,
		Summary:       hit.Node.Summary,
		Tickers:       hit.Node.Tickers,
		Companies:     hit.Node.Companies,
		Sectors:       hit.Node.Sectors,
		Themes:        hit.Node.Themes,
		EventTypes:    hit.Node.EventTypes,
		Reason:        reason,
		MatchedTicker: hit.MatchedTicker,
		MatchedTheme:  hit.MatchedTheme,
		PathCount:     1,
	}
}

// holdingCandidates returns documents affecting held tickers.
func (e *Engine) holdingCandidates(ctx context.Context, client *models.Client, filter interfaces.GraphFilter) ([]models.Candidate, error) {
	tickers := client.Portfolio.HeldTickers()
	if len(tickers) == 0 {
		return nil, nil
	}
	hits, err := e.storage.Graph().DocumentsAffecting(ctx, tickers, filter)
	if err != nil {
		return nil, err
	}
	candidates := make([]models.Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, candidateFromHit(hit, models.ReasonDirectHolding))
	}
	return candidates, nil
}

// watchlistCandidates returns documents affecting watched tickers that are
// not also held. Held tickers already arrive via the holding path.
func (e *Engine) watchlistCandidates(ctx context.Context, client *models.Client, filter interfaces.GraphFilter) ([]models.Candidate, error) {
	held := make(map[string]bool)
	for _, t := range client.Portfolio.HeldTickers() {
		held[t] = true
	}
	tickers := make([]string, 0, len(client.Watchlist.Items))
	for _, t := range client.Watchlist.WatchedTickers() {
		if !held[t] {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		return nil, nil
	}
	hits, err := e.storage.Graph().DocumentsAffecting(ctx, tickers, filter)
	if err != nil {
		return nil, err
	}
	candidates := make([]models.Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, candidateFromHit(hit, models.ReasonWatchlist))
	}
	return candidates, nil
}

// lateralCandidates walks the entity graph from held and watched tickers to
// peers, suppliers, and competitors, then finds documents affecting those.
func (e *Engine) lateralCandidates(ctx context.Context, client *models.Client, filter interfaces.GraphFilter) ([]models.Candidate, error) {
	seeds := append(client.Portfolio.HeldTickers(), client.Watchlist.WatchedTickers()...)
	if len(seeds) == 0 {
		return nil, nil
	}
	lateral, err := e.storage.Graph().LateralInstruments(ctx, seeds, lateralDepth)
	if err != nil {
		return nil, err
	}
	if len(lateral) == 0 {
		return nil, nil
	}

	reasonByTicker := make(map[string]models.Reason, len(lateral))
	tickers := make([]string, 0, len(lateral))
	for _, hit := range lateral {
		if _, seen := reasonByTicker[hit.Ticker]; seen {
			continue
		}
		reasonByTicker[hit.Ticker] = hit.Reason
		tickers = append(tickers, hit.Ticker)
	}

	hits, err := e.storage.Graph().DocumentsAffecting(ctx, tickers, filter)
	if err != nil {
		return nil, err
	}
	candidates := make([]models.Candidate, 0, len(hits))
	for _, hit := range hits {
		reason := reasonByTicker[hit.MatchedTicker]
		if reason == "" {
			reason = models.ReasonPeer
		}
		candidates = append(candidates, candidateFromHit(hit, reason))
	}
	return candidates, nil
}

// thematicCandidates returns documents tagged with mandate themes.
func (e *Engine) thematicCandidates(ctx context.Context, client *models.Client, filter interfaces.GraphFilter) ([]models.Candidate, error) {
	themes := client.Profile.MandateThemes
	if len(themes) == 0 {
		return nil, nil
	}
	hits, err := e.storage.Graph().DocumentsTagged(ctx, themes, filter)
	if err != nil {
		return nil, err
	}
	candidates := make([]models.Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, candidateFromHit(hit, models.ReasonThematic))
	}
	return candidates, nil
}

// vectorCandidates runs a k-NN search with the client's mandate embedding.
// Skipped entirely when the gate is closed at this lambda or the mandate
// has no embedding yet.
func (e *Engine) vectorCandidates(ctx context.Context, client *models.Client, lambda float64, k int, filter interfaces.GraphFilter) ([]models.Candidate, error) {
	if e.scorer.vectorActivation(lambda) == 0 || len(client.Profile.MandateEmbedding) == 0 {
		return nil, nil
	}
	matches, err := e.storage.Vector().Search(ctx, client.Profile.MandateEmbedding, k, models.VectorFilter{
		Groups:         filter.Groups,
		Since:          filter.Since,
		MinImpactScore: filter.MinImpactScore,
		ImpactTiers:    filter.ImpactTiers,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(matches))
	for _, match := range matches {
		node, err := e.storage.Graph().GetDocumentNode(ctx, match.DocumentID, filter.Groups)
		if err != nil || node == nil {
			// Chunk without a graph node; reconciliation cleans these up.
			continue
		}
		c := candidateFromHit(interfaces.DocumentHit{Node: *node}, models.ReasonVector)
		c.Similarity = match.Similarity
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// applyRestrictions drops candidates touching the client's excluded
// companies or sectors before any scoring happens.
func applyRestrictions(candidates []models.Candidate, restrictions *models.Restrictions) []models.Candidate {
	if restrictions == nil || restrictions.Empty() {
		return candidates
	}
	excludedCompanies := lowerSet(restrictions.ExcludedCompanies)
	excludedSectors := lowerSet(restrictions.ExcludedSectors)
	for _, s := range restrictions.ExcludedIndustries {
		excludedSectors[strings.ToLower(s)] = true
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if intersects(c.Companies, excludedCompanies) || intersects(c.Sectors, excludedSectors) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}

func intersects(values []string, set map[string]bool) bool {
	if len(set) == 0 {
		return false
	}
	for _, v := range values {
		if set[strings.ToLower(v)] {
			return true
		}
	}
	return false
}

// whyItMattersBase builds the deterministic relevance sentence from the
// strongest reason. The LLM rewrite layers on top of this, never replaces it.
func whyItMattersBase(m *merged) string {
	var primary string
	switch {
	case hasReason(m.reasons, models.ReasonDirectHolding):
		primary = fmt.Sprintf("Directly affects held position %s", firstTicker(m))
	case hasReason(m.reasons, models.ReasonWatchlist):
		primary = fmt.Sprintf("Affects watched instrument %s", firstTicker(m))
	case hasReason(m.reasons, models.ReasonPeer):
		primary = "Affects a peer of a held or watched company"
	case hasReason(m.reasons, models.ReasonSupplier):
		primary = "Affects a supplier of a held or watched company"
	case hasReason(m.reasons, models.ReasonCompetitor):
		primary = "Affects a competitor of a held or watched company"
	case hasReason(m.reasons, models.ReasonThematic):
		theme := m.doc.MatchedTheme
		if theme == "" && len(m.doc.Themes) > 0 {
			theme = m.doc.Themes[0]
		}
		primary = fmt.Sprintf("Matches mandate theme %s", theme)
	case hasReason(m.reasons, models.ReasonVector):
		primary = "Semantically aligned with the investment mandate"
	default:
		primary = "Relevant to the client book"
	}
	if extra := len(m.reasons) - 1; extra > 0 {
		return fmt.Sprintf("%s (+%d more signals)", primary, extra)
	}
	return primary
}

func firstTicker(m *merged) string {
	if m.doc.MatchedTicker != "" {
		return m.doc.MatchedTicker
	}
	for t := range m.tickers {
		return t
	}
	if len(m.doc.Tickers) > 0 {
		return m.doc.Tickers[0]
	}
	return "?"
}

// windowStart converts an hour window to an absolute lower bound.
func windowStart(hours int, now time.Time) time.Time {
	if hours <= 0 {
		return time.Time{}
	}
	return now.Add(-time.Duration(hours) * time.Hour)
}
