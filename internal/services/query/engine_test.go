package query

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

type fakeGraph struct {
	interfaces.GraphStorage
	nodes      []models.DocumentNode
	lateral    []interfaces.LateralHit
	known      []string
	lastFilter interfaces.GraphFilter
}

func (g *fakeGraph) passes(node *models.DocumentNode, filter interfaces.GraphFilter) bool {
	inGroup := false
	for _, group := range filter.Groups {
		if group == node.GroupID {
			inGroup = true
			break
		}
	}
	if !inGroup {
		return false
	}
	if !filter.Since.IsZero() && node.CreatedAt.Before(filter.Since) {
		return false
	}
	if node.ImpactScore < filter.MinImpactScore {
		return false
	}
	if len(filter.ImpactTiers) > 0 {
		ok := false
		for _, tier := range filter.ImpactTiers {
			if tier == node.ImpactTier {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (g *fakeGraph) DocumentsAffecting(ctx context.Context, tickers []string, filter interfaces.GraphFilter) ([]interfaces.DocumentHit, error) {
	g.lastFilter = filter
	want := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		want[t] = true
	}
	var hits []interfaces.DocumentHit
	for i := range g.nodes {
		node := g.nodes[i]
		if !g.passes(&node, filter) {
			continue
		}
		for _, t := range node.Tickers {
			if want[t] {
				hits = append(hits, interfaces.DocumentHit{Node: node, MatchedTicker: t})
				break
			}
		}
	}
	return hits, nil
}

func (g *fakeGraph) DocumentsTagged(ctx context.Context, themes []string, filter interfaces.GraphFilter) ([]interfaces.DocumentHit, error) {
	g.lastFilter = filter
	want := make(map[string]bool, len(themes))
	for _, theme := range themes {
		want[theme] = true
	}
	var hits []interfaces.DocumentHit
	for i := range g.nodes {
		node := g.nodes[i]
		if !g.passes(&node, filter) {
			continue
		}
		for _, theme := range node.Themes {
			if want[theme] {
				hits = append(hits, interfaces.DocumentHit{Node: node, MatchedTheme: theme})
				break
			}
		}
	}
	return hits, nil
}

func (g *fakeGraph) LateralInstruments(ctx context.Context, seeds []string, maxDepth int) ([]interfaces.LateralHit, error) {
	return g.lateral, nil
}

func (g *fakeGraph) GetDocumentNode(ctx context.Context, documentID string, groups []string) (*models.DocumentNode, error) {
	for i := range g.nodes {
		node := g.nodes[i]
		if node.DocumentID != documentID {
			continue
		}
		for _, group := range groups {
			if group == node.GroupID {
				return &node, nil
			}
		}
	}
	return nil, models.NewServiceError(models.ErrNotFound, "document not found")
}

func (g *fakeGraph) KnownTickers(ctx context.Context) ([]string, error) {
	return g.known, nil
}

type fakeVector struct {
	interfaces.VectorStorage
	matches    []models.VectorMatch
	lastFilter models.VectorFilter
}

func (v *fakeVector) Search(ctx context.Context, vector []float32, k int, filter models.VectorFilter) ([]models.VectorMatch, error) {
	v.lastFilter = filter
	return v.matches, nil
}

type fakeClients struct {
	interfaces.ClientStorage
	clients map[string]*models.Client
}

func (c *fakeClients) GetClient(ctx context.Context, clientID string, groups []string) (*models.Client, error) {
	client, ok := c.clients[clientID]
	if ok {
		for _, group := range groups {
			if group == client.GroupID {
				return client, nil
			}
		}
	}
	return nil, models.NewServiceError(models.ErrNotFound, "client not found")
}

type fakeStorage struct {
	interfaces.StorageManager
	graph   *fakeGraph
	vector  *fakeVector
	clients *fakeClients
}

func (s *fakeStorage) Graph() interfaces.GraphStorage    { return s.graph }
func (s *fakeStorage) Vector() interfaces.VectorStorage  { return s.vector }
func (s *fakeStorage) Clients() interfaces.ClientStorage { return s.clients }

type fakeEmbedder struct {
	vector []float32
}

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vector, nil
}

type scriptedChat struct {
	reply string
	err   error
	calls int
}

func (c *scriptedChat) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	c.calls++
	return c.reply, c.err
}

type engineFixture struct {
	engine  *Engine
	graph   *fakeGraph
	vector  *fakeVector
	clients *fakeClients
	now     time.Time
}

func newEngineFixture(t *testing.T, chat chatClient) *engineFixture {
	t.Helper()
	f := &engineFixture{
		graph:   &fakeGraph{},
		vector:  &fakeVector{},
		clients: &fakeClients{clients: make(map[string]*models.Client)},
		now:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	storage := &fakeStorage{graph: f.graph, vector: f.vector, clients: f.clients}
	config := common.DefaultConfig()
	f.engine = NewEngine(config, storage, &fakeEmbedder{vector: []float32{0.1, 0.2}}, chat, arbor.NewLogger())
	f.engine.clock = func() time.Time { return f.now }
	return f
}

func readerAuth(groups ...string) *models.AuthContext {
	return &models.AuthContext{PermittedGroups: groups, WriteGroup: groups[0]}
}

func (f *engineFixture) addClient(client *models.Client) {
	f.clients.clients[client.ClientID] = client
}

func TestGetTopClientNews_HoldingsDefense(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addClient(&models.Client{
		ClientID:   "cl-1",
		GroupID:    "fund-alpha",
		ClientType: "growth",
		Portfolio:  models.Portfolio{Holdings: []models.Holding{{Ticker: "AAPL", Weight: 0.3}}},
		Profile:    models.ClientProfile{MandateThemes: []string{"clean_energy"}},
	})
	f.graph.nodes = []models.DocumentNode{
		{
			DocumentID: "doc-held", GroupID: "fund-alpha",
			CreatedAt: f.now.Add(-30 * time.Minute),
			Tickers:   []string{"AAPL"}, ImpactScore: 82, ImpactTier: "GOLD",
			Title: "Apple guidance cut",
		},
		{
			DocumentID: "doc-theme", GroupID: "fund-alpha",
			CreatedAt: f.now.Add(-30 * time.Minute),
			Themes:    []string{"clean_energy"}, ImpactScore: 55, ImpactTier: "SILVER",
			Title: "Solar subsidies expanded",
		},
	}

	ranked, err := f.engine.GetTopClientNews(context.Background(), readerAuth("fund-alpha", "public"), "cl-1", models.FeedOptions{OpportunityBias: 0})
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, "doc-held", ranked[0].DocumentID, "defensive lambda puts the held position first")
	assert.Contains(t, ranked[0].Reasons, models.ReasonDirectHolding)
	assert.Contains(t, ranked[0].WhyItMattersBase, "AAPL")
	assert.Greater(t, ranked[0].FinalScore, ranked[1].FinalScore)

	assert.Equal(t, []string{"fund-alpha", "public"}, f.graph.lastFilter.Groups,
		"group containment rides inside the store query")
}

func TestGetTopClientNews_OpportunityBias(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addClient(&models.Client{
		ClientID:  "cl-1",
		GroupID:   "fund-alpha",
		Portfolio: models.Portfolio{Holdings: []models.Holding{
			{Ticker: "AAPL", Weight: 0.30},
			{Ticker: "XOM", Weight: 0.01},
		}},
		Profile: models.ClientProfile{MandateThemes: []string{"clean_energy"}},
	})
	f.graph.nodes = []models.DocumentNode{
		{
			DocumentID: "doc-held", GroupID: "fund-alpha",
			CreatedAt: f.now.Add(-8 * time.Hour),
			Tickers:   []string{"XOM"}, ImpactScore: 40, ImpactTier: "BRONZE",
		},
		{
			DocumentID: "doc-theme", GroupID: "fund-alpha",
			CreatedAt: f.now.Add(-20 * time.Minute),
			Themes:    []string{"clean_energy"}, ImpactScore: 70, ImpactTier: "GOLD",
		},
	}

	ranked, err := f.engine.GetTopClientNews(context.Background(), readerAuth("fund-alpha"), "cl-1", models.FeedOptions{OpportunityBias: 1})
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "doc-theme", ranked[0].DocumentID, "full opportunity bias surfaces the mandate theme story")
	assert.Contains(t, ranked[0].Reasons, models.ReasonThematic)
}

func TestGetTopClientNews_VectorPathGatedAtLambdaZero(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addClient(&models.Client{
		ClientID: "cl-1",
		GroupID:  "fund-alpha",
		Profile:  models.ClientProfile{MandateEmbedding: []float32{0.5, 0.5}},
	})
	f.vector.matches = []models.VectorMatch{{DocumentID: "doc-v", Similarity: 0.95}}
	f.graph.nodes = []models.DocumentNode{
		{DocumentID: "doc-v", GroupID: "fund-alpha", CreatedAt: f.now.Add(-time.Hour), ImpactScore: 60},
	}

	ranked, err := f.engine.GetTopClientNews(context.Background(), readerAuth("fund-alpha"), "cl-1", models.FeedOptions{OpportunityBias: 0})
	require.NoError(t, err)
	assert.Empty(t, ranked, "vector-only candidates never enter a fully defensive feed")

	ranked, err = f.engine.GetTopClientNews(context.Background(), readerAuth("fund-alpha"), "cl-1", models.FeedOptions{OpportunityBias: 1})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Contains(t, ranked[0].Reasons, models.ReasonVector)
}

func TestGetTopClientNews_LateralPath(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addClient(&models.Client{
		ClientID:  "cl-1",
		GroupID:   "fund-alpha",
		Portfolio: models.Portfolio{Holdings: []models.Holding{{Ticker: "AAPL", Weight: 0.2}}},
	})
	f.graph.lateral = []interfaces.LateralHit{{Ticker: "TSM", Reason: models.ReasonSupplier, Depth: 2}}
	f.graph.nodes = []models.DocumentNode{
		{DocumentID: "doc-supplier", GroupID: "fund-alpha", CreatedAt: f.now.Add(-time.Hour), Tickers: []string{"TSM"}, ImpactScore: 65},
	}

	ranked, err := f.engine.GetTopClientNews(context.Background(), readerAuth("fund-alpha"), "cl-1", models.FeedOptions{})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Contains(t, ranked[0].Reasons, models.ReasonSupplier)

	off := false
	ranked, err = f.engine.GetTopClientNews(context.Background(), readerAuth("fund-alpha"), "cl-1", models.FeedOptions{IncludeLateralGraph: &off})
	require.NoError(t, err)
	assert.Empty(t, ranked, "lateral path can be switched off per query")
}

func TestGetTopClientNews_RestrictionsFilterBeforeScoring(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addClient(&models.Client{
		ClientID:  "cl-1",
		GroupID:   "fund-alpha",
		Portfolio: models.Portfolio{Holdings: []models.Holding{{Ticker: "MO", Weight: 0.1}}},
		Profile: models.ClientProfile{
			Restrictions: models.Restrictions{ExcludedSectors: []string{"tobacco"}},
		},
	})
	f.graph.nodes = []models.DocumentNode{
		{DocumentID: "doc-mo", GroupID: "fund-alpha", CreatedAt: f.now.Add(-time.Hour), Tickers: []string{"MO"}, Sectors: []string{"tobacco"}, ImpactScore: 90, ImpactTier: "PLATINUM"},
	}

	ranked, err := f.engine.GetTopClientNews(context.Background(), readerAuth("fund-alpha"), "cl-1", models.FeedOptions{})
	require.NoError(t, err)
	assert.Empty(t, ranked, "excluded sectors never reach the scorer, whatever the impact")
}

func TestGetTopClientNews_ForeignClient(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addClient(&models.Client{ClientID: "cl-1", GroupID: "fund-beta"})

	_, err := f.engine.GetTopClientNews(context.Background(), readerAuth("fund-alpha"), "cl-1", models.FeedOptions{})
	require.Error(t, err)
	assert.Equal(t, models.ErrNotFound, models.CodeOf(err), "foreign clients read as absent, not forbidden")
}

func TestQueryDocuments_CombinesPaths(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.graph.known = []string{"AAPL"}
	f.graph.nodes = []models.DocumentNode{
		{DocumentID: "doc-entity", GroupID: "fund-alpha", CreatedAt: f.now.Add(-time.Hour), Tickers: []string{"AAPL"}, ImpactScore: 70},
		{DocumentID: "doc-theme", GroupID: "fund-alpha", CreatedAt: f.now.Add(-time.Hour), Themes: []string{"ai"}, ImpactScore: 50},
		{DocumentID: "doc-vector", GroupID: "fund-alpha", CreatedAt: f.now.Add(-time.Hour), ImpactScore: 60},
	}
	f.vector.matches = []models.VectorMatch{{DocumentID: "doc-vector", Similarity: 0.80}}

	results, err := f.engine.QueryDocuments(context.Background(), readerAuth("fund-alpha"), "AAPL ai chip demand", models.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "doc-entity", results[0].DocumentID)
	assert.Equal(t, []string{"entity"}, results[0].Matches)
	assert.Equal(t, "doc-vector", results[1].DocumentID)
	assert.Equal(t, "doc-theme", results[2].DocumentID)
	assert.Equal(t, []string{"theme"}, results[2].Matches)

	assert.Equal(t, []string{"fund-alpha"}, f.vector.lastFilter.Groups)
}

func TestQueryDocuments_EmptyQuery(t *testing.T) {
	f := newEngineFixture(t, nil)
	_, err := f.engine.QueryDocuments(context.Background(), readerAuth("fund-alpha"), "   ", models.SearchOptions{})
	require.Error(t, err)
	assert.Equal(t, models.ErrInvalidInput, models.CodeOf(err))
}

func TestWhyItMatters_BaseWithoutChat(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addClient(&models.Client{
		ClientID:  "cl-1",
		GroupID:   "fund-alpha",
		Portfolio: models.Portfolio{Holdings: []models.Holding{{Ticker: "AAPL", Weight: 0.3}}},
	})
	f.graph.nodes = []models.DocumentNode{
		{DocumentID: "doc-1", GroupID: "fund-alpha", Tickers: []string{"AAPL"}, Title: "Apple guidance cut"},
	}

	explanation, err := f.engine.WhyItMatters(context.Background(), readerAuth("fund-alpha"), "cl-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Directly affects held position AAPL", explanation.WhyItMatters)
	assert.Equal(t, "Apple guidance cut", explanation.StorySummary, "missing summary falls back to the title")
}

func TestWhyItMatters_RewriteAndFallback(t *testing.T) {
	chat := &scriptedChat{reply: "Apple's guidance cut pressures the client's largest holding."}
	f := newEngineFixture(t, chat)
	f.addClient(&models.Client{
		ClientID:  "cl-1",
		GroupID:   "fund-alpha",
		Portfolio: models.Portfolio{Holdings: []models.Holding{{Ticker: "AAPL", Weight: 0.3}}},
	})
	f.graph.nodes = []models.DocumentNode{
		{DocumentID: "doc-1", GroupID: "fund-alpha", Tickers: []string{"AAPL"}},
	}
	auth := readerAuth("fund-alpha")

	explanation, err := f.engine.WhyItMatters(context.Background(), auth, "cl-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, chat.reply, explanation.WhyItMatters)

	// An over-long rewrite falls back to the deterministic base.
	chat.reply = strings.Repeat("very ", 35) + "long"
	explanation, err = f.engine.WhyItMatters(context.Background(), auth, "cl-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Directly affects held position AAPL", explanation.WhyItMatters)
}
