package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// queryEmbedder embeds free-text queries for the vector path.
type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// chatClient rewrites the deterministic relevance base into client prose.
type chatClient interface {
	Chat(ctx context.Context, messages []interfaces.Message) (string, error)
}

// Engine is the hybrid query engine: graph candidate paths and vector
// search feed one scorer, with group containment applied store-side on
// every query it issues.
type Engine struct {
	config   *common.QueryConfig
	storage  interfaces.StorageManager
	scorer   *Scorer
	embedder queryEmbedder
	chat     chatClient
	clock    func() time.Time
	logger   arbor.ILogger
}

// NewEngine creates the query engine. chat may be nil; the why-it-matters
// tool then returns the deterministic base sentence unrewritten.
func NewEngine(config *common.Config, storage interfaces.StorageManager, embedder queryEmbedder, chat chatClient, logger arbor.ILogger) *Engine {
	return &Engine{
		config:   &config.Query,
		storage:  storage,
		scorer:   NewScorer(&config.Query),
		embedder: embedder,
		chat:     chat,
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

func boolOpt(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func clamp01f(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// GetTopClientNews returns the ranked per-client feed. The client lookup is
// restricted to the caller's permitted groups, so a foreign client id reads
// as NOT_FOUND rather than leaking existence.
func (e *Engine) GetTopClientNews(ctx context.Context, auth *models.AuthContext, clientID string, opts models.FeedOptions) ([]models.RankedArticle, error) {
	client, err := e.storage.Clients().GetClient(ctx, clientID, auth.PermittedGroups)
	if err != nil {
		return nil, err
	}

	lambda := clamp01f(opts.OpportunityBias)
	k := opts.K
	if k <= 0 {
		k = e.config.DefaultK
	}
	windowHours := opts.TimeWindowHours
	if windowHours <= 0 {
		windowHours = e.config.DefaultWindowHours
	}
	now := e.clock()
	filter := interfaces.GraphFilter{
		Groups:         auth.PermittedGroups,
		Since:          windowStart(windowHours, now),
		MinImpactScore: opts.MinImpactScore,
		ImpactTiers:    opts.ImpactTiers,
	}

	var candidates []models.Candidate
	if boolOpt(opts.IncludePortfolio, true) {
		batch, err := e.holdingCandidates(ctx, client, filter)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, batch...)
	}
	if boolOpt(opts.IncludeWatchlist, true) {
		batch, err := e.watchlistCandidates(ctx, client, filter)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, batch...)
	}
	if boolOpt(opts.IncludeLateralGraph, true) {
		batch, err := e.lateralCandidates(ctx, client, filter)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, batch...)
	}
	thematic, err := e.thematicCandidates(ctx, client, filter)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, thematic...)

	// Over-fetch the vector path; the merge can collapse several matches
	// into documents already reached by graph paths.
	vector, err := e.vectorCandidates(ctx, client, lambda, k*3, filter)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, vector...)

	candidates = applyRestrictions(candidates, &client.Profile.Restrictions)
	ranked := e.scorer.rank(mergeCandidates(candidates), client, lambda, k, now)

	e.logger.Debug().
		Str("client_id", clientID).
		Float64("lambda", lambda).
		Int("candidates", len(candidates)).
		Int("returned", len(ranked)).
		Msg("Client feed ranked")

	return ranked, nil
}

// Free-text search path scores. Vector matches carry their similarity;
// entity and theme tag matches are fixed-confidence.
const (
	entityMatchScore = 0.9
	themeMatchScore  = 0.7
)

// QueryDocuments is the group-scoped free-text search. The query is embedded
// for the vector path; its tokens are also matched against the instrument
// universe and the theme vocabulary for exact graph paths.
func (e *Engine) QueryDocuments(ctx context.Context, auth *models.AuthContext, queryText string, opts models.SearchOptions) ([]models.SearchResult, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, models.NewServiceError(models.ErrInvalidInput, "query text is required")
	}

	k := opts.K
	if k <= 0 {
		k = e.config.DefaultK
	}
	windowHours := opts.TimeWindowHours
	if windowHours <= 0 {
		windowHours = e.config.DefaultWindowHours
	}
	now := e.clock()
	filter := interfaces.GraphFilter{
		Groups:         auth.PermittedGroups,
		Since:          windowStart(windowHours, now),
		MinImpactScore: opts.MinImpactScore,
		ImpactTiers:    opts.ImpactTiers,
	}

	type hit struct {
		result  models.SearchResult
		matches map[string]bool
	}
	byDoc := make(map[string]*hit)
	record := func(node *models.DocumentNode, score float64, path string) {
		h, ok := byDoc[node.DocumentID]
		if !ok {
			h = &hit{
				result: models.SearchResult{
					DocumentID:  node.DocumentID,
					Title:       node.Title,
					Summary:     node.Summary,
					CreatedAt:   node.CreatedAt,
					ImpactScore: node.ImpactScore,
					ImpactTier:  node.ImpactTier,
				},
				matches: make(map[string]bool),
			}
			byDoc[node.DocumentID] = h
		}
		if score > h.result.Score {
			h.result.Score = score
		}
		h.matches[path] = true
	}

	// Vector path.
	queryVector, err := e.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, err
	}
	matches, err := e.storage.Vector().Search(ctx, queryVector, k*3, models.VectorFilter{
		Groups:         filter.Groups,
		Since:          filter.Since,
		MinImpactScore: filter.MinImpactScore,
		ImpactTiers:    filter.ImpactTiers,
	})
	if err != nil {
		return nil, err
	}
	for _, match := range matches {
		node, err := e.storage.Graph().GetDocumentNode(ctx, match.DocumentID, filter.Groups)
		if err != nil || node == nil {
			continue
		}
		record(node, match.Similarity, "vector")
	}

	// Entity path: uppercase query tokens against the instrument universe.
	if tickers, err := e.queryTickers(ctx, queryText); err == nil && len(tickers) > 0 {
		hits, err := e.storage.Graph().DocumentsAffecting(ctx, tickers, filter)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			record(&h.Node, entityMatchScore, "entity")
		}
	}

	// Theme path: lowercase tokens against the theme vocabulary.
	if themes := queryThemes(queryText); len(themes) > 0 {
		hits, err := e.storage.Graph().DocumentsTagged(ctx, themes, filter)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			record(&h.Node, themeMatchScore, "theme")
		}
	}

	results := make([]models.SearchResult, 0, len(byDoc))
	for _, h := range byDoc {
		for path := range h.matches {
			h.result.Matches = append(h.result.Matches, path)
		}
		sort.Strings(h.result.Matches)
		results = append(results, h.result)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].DocumentID < results[j].DocumentID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// queryTickers intersects the query's uppercase tokens with known tickers.
func (e *Engine) queryTickers(ctx context.Context, queryText string) ([]string, error) {
	known, err := e.storage.Graph().KnownTickers(ctx)
	if err != nil {
		return nil, err
	}
	knownSet := make(map[string]bool, len(known))
	for _, t := range known {
		knownSet[t] = true
	}
	var tickers []string
	seen := make(map[string]bool)
	for _, token := range strings.Fields(queryText) {
		token = strings.ToUpper(strings.Trim(token, ".,;:!?()\"'"))
		if token == "" || seen[token] || !knownSet[token] {
			continue
		}
		seen[token] = true
		tickers = append(tickers, token)
	}
	return tickers, nil
}

// queryThemes intersects lowercase query tokens with the theme vocabulary.
func queryThemes(queryText string) []string {
	var themes []string
	seen := make(map[string]bool)
	for _, token := range strings.Fields(strings.ToLower(queryText)) {
		token = strings.Trim(token, ".,;:!?()\"'")
		if token == "" || seen[token] {
			continue
		}
		if models.IsTheme(token) {
			seen[token] = true
			themes = append(themes, token)
		}
	}
	return themes
}

const whyItMattersSystemPrompt = `You write one sentence for a portfolio manager explaining why a news item matters to a specific client. At most 30 words. No preamble, no hedging, present tense. Use the supplied relevance facts; do not invent holdings or numbers.`

// Explanation is the why_it_matters_to_client response: both fields are
// capped at 30 words.
type Explanation struct {
	WhyItMatters string `json:"why_it_matters"`
	StorySummary string `json:"story_summary"`
}

// WhyItMatters explains one document's relevance to one client. The
// deterministic base covers LLM-less deployments and is the fallback when
// the rewrite fails or overruns the word cap.
func (e *Engine) WhyItMatters(ctx context.Context, auth *models.AuthContext, clientID, documentID string) (*Explanation, error) {
	client, err := e.storage.Clients().GetClient(ctx, clientID, auth.PermittedGroups)
	if err != nil {
		return nil, err
	}
	node, err := e.storage.Graph().GetDocumentNode(ctx, documentID, auth.PermittedGroups)
	if err != nil {
		return nil, err
	}

	m := e.relevance(ctx, client, node)
	base := whyItMattersBase(m)
	summary := node.Summary
	if summary == "" {
		summary = node.Title
	}
	result := &Explanation{
		WhyItMatters: base,
		StorySummary: truncateWords(summary, 30),
	}
	if e.chat == nil {
		return result, nil
	}

	prompt := fmt.Sprintf("Headline: %s\nSummary: %s\nClient type: %s\nRelevance: %s\nEvent types: %s",
		node.Title, node.Summary, client.ClientType, base, strings.Join(node.EventTypes, ", "))
	sentence, err := e.chat.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: whyItMattersSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("document_id", documentID).Msg("Relevance rewrite failed, using base sentence")
		return result, nil
	}
	sentence = strings.TrimSpace(sentence)
	if sentence != "" && wordCount(sentence) <= 30 {
		result.WhyItMatters = sentence
	}
	return result, nil
}

// truncateWords caps s at n words.
func truncateWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) <= n {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:n], " ")
}

// relevance recomputes the reason set for one (client, document) pair
// without touching the stores beyond what the caller already fetched.
func (e *Engine) relevance(ctx context.Context, client *models.Client, node *models.DocumentNode) *merged {
	docTickers := make(map[string]bool, len(node.Tickers))
	for _, t := range node.Tickers {
		docTickers[t] = true
	}

	m := &merged{
		doc: models.Candidate{
			DocumentID: node.DocumentID,
			Title:      node.Title,
			Tickers:    node.Tickers,
			Themes:     node.Themes,
			EventTypes: node.EventTypes,
			CreatedAt:  node.CreatedAt,
		},
		tickers: make(map[string]bool),
	}
	for _, t := range client.Portfolio.HeldTickers() {
		if docTickers[t] {
			if !hasReason(m.reasons, models.ReasonDirectHolding) {
				m.reasons = append(m.reasons, models.ReasonDirectHolding)
			}
			m.tickers[t] = true
			if m.doc.MatchedTicker == "" {
				m.doc.MatchedTicker = t
			}
		}
	}
	for _, t := range client.Watchlist.WatchedTickers() {
		if docTickers[t] && !hasReason(m.reasons, models.ReasonWatchlist) {
			m.reasons = append(m.reasons, models.ReasonWatchlist)
			if m.doc.MatchedTicker == "" {
				m.doc.MatchedTicker = t
			}
		}
	}
	themeSet := make(map[string]bool, len(node.Themes))
	for _, theme := range node.Themes {
		themeSet[theme] = true
	}
	for _, theme := range client.Profile.MandateThemes {
		if themeSet[theme] && !hasReason(m.reasons, models.ReasonThematic) {
			m.reasons = append(m.reasons, models.ReasonThematic)
			m.doc.MatchedTheme = theme
		}
	}
	if len(m.reasons) == 0 {
		// Lateral links are worth one graph hop here.
		if lateral, err := e.storage.Graph().LateralInstruments(ctx, append(client.Portfolio.HeldTickers(), client.Watchlist.WatchedTickers()...), lateralDepth); err == nil {
			for _, hit := range lateral {
				if docTickers[hit.Ticker] {
					m.reasons = append(m.reasons, hit.Reason)
					m.doc.MatchedTicker = hit.Ticker
					break
				}
			}
		}
	}
	m.pathCount = len(m.reasons)
	return m
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
