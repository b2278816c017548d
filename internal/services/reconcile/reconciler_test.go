package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

type sliceIterator struct {
	docs []*models.Document
	pos  int
}

func (it *sliceIterator) Next() (*models.Document, error) {
	if it.pos >= len(it.docs) {
		return nil, nil
	}
	doc := it.docs[it.pos]
	it.pos++
	return doc, nil
}

func (it *sliceIterator) Close() error { return nil }

type fakeCanonical struct {
	interfaces.CanonicalStore
	byGroup map[string][]*models.Document
}

func (c *fakeCanonical) Iter(ctx context.Context, groupID string, from, to time.Time) (interfaces.DocumentIterator, error) {
	return &sliceIterator{docs: c.byGroup[groupID]}, nil
}

type fakeGraph struct {
	interfaces.GraphStorage
	nodes map[string]string // documentID -> groupID
}

func (g *fakeGraph) GetDocumentNode(ctx context.Context, documentID string, groups []string) (*models.DocumentNode, error) {
	group, ok := g.nodes[documentID]
	if !ok {
		return nil, models.NewServiceError(models.ErrNotFound, "no node")
	}
	for _, candidate := range groups {
		if candidate == group {
			return &models.DocumentNode{DocumentID: documentID, GroupID: group}, nil
		}
	}
	return nil, models.NewServiceError(models.ErrNotFound, "no node")
}

type fakeVector struct {
	interfaces.VectorStorage
	chunks map[string]int
}

func (v *fakeVector) ChunkCount(ctx context.Context, documentID string) (int, error) {
	return v.chunks[documentID], nil
}

type fakeGroups struct {
	interfaces.GroupStorage
	groups []*models.Group
}

func (g *fakeGroups) ListGroups(ctx context.Context) ([]*models.Group, error) {
	return g.groups, nil
}

type fakeStorage struct {
	interfaces.StorageManager
	canonical *fakeCanonical
	graph     *fakeGraph
	vector    *fakeVector
	groups    *fakeGroups
}

func (s *fakeStorage) Canonical() interfaces.CanonicalStore { return s.canonical }
func (s *fakeStorage) Graph() interfaces.GraphStorage       { return s.graph }
func (s *fakeStorage) Vector() interfaces.VectorStorage     { return s.vector }
func (s *fakeStorage) Groups() interfaces.GroupStorage      { return s.groups }

func doc(id string) *models.Document {
	return &models.Document{DocumentID: id, CreatedAt: time.Now().UTC()}
}

func TestSweep_FlagsOrphans(t *testing.T) {
	storage := &fakeStorage{
		canonical: &fakeCanonical{byGroup: map[string][]*models.Document{
			"fund-alpha": {doc("healthy"), doc("no-node"), doc("no-chunks")},
		}},
		graph: &fakeGraph{nodes: map[string]string{
			"healthy":   "fund-alpha",
			"no-chunks": "fund-alpha",
		}},
		vector: &fakeVector{chunks: map[string]int{"healthy": 3}},
		groups: &fakeGroups{groups: []*models.Group{{GroupID: "fund-alpha", Name: "fund-alpha"}}},
	}

	config := common.DefaultConfig()
	r, err := NewReconciler(&config.Reconcile, storage, nil, arbor.NewLogger())
	require.NoError(t, err)

	report, err := r.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, 3, report.Documents)
	require.Len(t, report.Orphans, 2)

	kinds := map[string]string{}
	for _, orphan := range report.Orphans {
		kinds[orphan.DocumentID] = orphan.Kind
	}
	assert.Equal(t, "missing_graph_node", kinds["no-node"])
	assert.Equal(t, "missing_chunks", kinds["no-chunks"])
}

func TestSweep_PublishesEvent(t *testing.T) {
	storage := &fakeStorage{
		canonical: &fakeCanonical{byGroup: map[string][]*models.Document{}},
		graph:     &fakeGraph{nodes: map[string]string{}},
		vector:    &fakeVector{chunks: map[string]int{}},
		groups:    &fakeGroups{groups: []*models.Group{{GroupID: "fund-alpha"}}},
	}
	events := &capturingPublisher{}

	config := common.DefaultConfig()
	r, err := NewReconciler(&config.Reconcile, storage, events, arbor.NewLogger())
	require.NoError(t, err)

	_, err = r.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, events.published, 1)
	assert.Equal(t, "reconcile.done", events.published[0].Type)
}

func TestNewReconciler_BadLookback(t *testing.T) {
	config := common.DefaultConfig()
	config.Reconcile.Lookback = "one week"
	_, err := NewReconciler(&config.Reconcile, &fakeStorage{}, nil, arbor.NewLogger())
	require.Error(t, err)
}

type capturingPublisher struct {
	published []interfaces.Event
}

func (p *capturingPublisher) Publish(event interfaces.Event) {
	p.published = append(p.published, event)
}

func (p *capturingPublisher) Subscribe() (<-chan interfaces.Event, func()) {
	return nil, func() {}
}
