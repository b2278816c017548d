package aliases

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// memGraph implements the alias and entity slice of GraphStorage.
type memGraph struct {
	interfaces.GraphStorage
	aliases  map[string]string
	entities map[string]*models.EntityNode
	lookups  int
}

func newMemGraph() *memGraph {
	return &memGraph{
		aliases:  make(map[string]string),
		entities: make(map[string]*models.EntityNode),
	}
}

func (g *memGraph) ResolveAlias(ctx context.Context, scheme, value string) (string, bool, error) {
	g.lookups++
	key, ok := g.aliases[scheme+"/"+value]
	return key, ok, nil
}

func (g *memGraph) UpsertAlias(ctx context.Context, scheme, value, entityKey string) error {
	existing, ok := g.aliases[scheme+"/"+value]
	if ok && existing != entityKey {
		return models.NewServiceError(models.ErrSchemaViolation, "alias already bound")
	}
	g.aliases[scheme+"/"+value] = entityKey
	return nil
}

func (g *memGraph) UpsertEntity(ctx context.Context, node *models.EntityNode) error {
	if node.Key == "" {
		node.Key = node.Kind + "/" + node.Name
	}
	g.entities[node.Key] = node
	return nil
}

func (g *memGraph) UpsertEntityEdge(ctx context.Context, edge *models.EntityEdge) error {
	return nil
}

func newTestResolver(t *testing.T, graph *memGraph, seedDir string) *Resolver {
	t.Helper()
	config := common.DefaultConfig()
	config.Aliases.SeedDir = seedDir
	config.Aliases.CacheSize = 16
	r, err := NewResolver(config, graph, arbor.NewLogger())
	require.NoError(t, err)
	return r
}

func TestResolve_SchemeOrderAndNormalization(t *testing.T) {
	graph := newMemGraph()
	graph.aliases["ticker/AAPL"] = "Instrument/AAPL"
	graph.aliases["name/apple inc"] = "Instrument/AAPL"
	r := newTestResolver(t, graph, "")
	ctx := context.Background()

	key, scheme, ok, err := r.Resolve(ctx, " aapl ", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Instrument/AAPL", key)
	assert.Equal(t, models.SchemeTicker, scheme)

	key, scheme, ok, err = r.Resolve(ctx, "Apple Inc", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Instrument/AAPL", key)
	assert.Equal(t, models.SchemeName, scheme)
}

func TestResolve_CachesHits(t *testing.T) {
	graph := newMemGraph()
	graph.aliases["ticker/MSFT"] = "Instrument/MSFT"
	r := newTestResolver(t, graph, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, ok, err := r.Resolve(ctx, "MSFT", models.SchemeTicker)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 1, graph.lookups, "store hit once, cache after")
}

func TestResolve_UnknownValue(t *testing.T) {
	r := newTestResolver(t, newMemGraph(), "")

	_, _, ok, err := r.Resolve(context.Background(), "ZZZZ", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegister_InvalidatesCache(t *testing.T) {
	graph := newMemGraph()
	graph.aliases["ticker/NVDA"] = "Instrument/NVDA"
	r := newTestResolver(t, graph, "")
	ctx := context.Background()

	_, _, ok, err := r.Resolve(ctx, "NVDA", models.SchemeTicker)
	require.NoError(t, err)
	require.True(t, ok)

	// Re-registering the same binding must not error and must drop the
	// cached entry.
	require.NoError(t, r.Register(ctx, models.SchemeTicker, "NVDA", "Instrument/NVDA"))
	before := graph.lookups
	_, _, ok, err = r.Resolve(ctx, "NVDA", models.SchemeTicker)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, before+1, graph.lookups, "cache entry was invalidated")
}

func TestSeedLoading(t *testing.T) {
	dir := t.TempDir()
	seed := `
[[instruments]]
ticker = "aapl"
name = "Apple Inc"
type = "STOCK"
isin = "US0378331005"
company = "Apple Inc"
sector = "Technology"
aliases = ["Apple"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "us_equities.toml"), []byte(seed), 0644))

	graph := newMemGraph()
	r := newTestResolver(t, graph, dir)
	ctx := context.Background()

	key, _, ok, err := r.Resolve(ctx, "AAPL", models.SchemeTicker)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Instrument/AAPL", key)

	key, scheme, ok, err := r.Resolve(ctx, "US0378331005", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Instrument/AAPL", key)
	assert.Equal(t, models.SchemeISIN, scheme)

	_, _, ok, err = r.Resolve(ctx, "apple", "")
	require.NoError(t, err)
	assert.True(t, ok)

	_, hasInstr := graph.entities["Instrument/AAPL"]
	assert.True(t, hasInstr)
}
