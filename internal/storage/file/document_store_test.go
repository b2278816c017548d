package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/models"
)

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func testDocument(id, groupID string, createdAt time.Time) *models.Document {
	return &models.Document{
		DocumentID:  id,
		Version:     1,
		SourceID:    "src-reuters",
		GroupID:     groupID,
		CreatedAt:   createdAt,
		Language:    "en",
		Title:       "Fed holds rates steady",
		Content:     "The Federal Reserve held rates steady on Wednesday.",
		WordCount:   8,
		ContentHash: "abc123",
		ImpactScore: 70,
		ImpactTier:  models.TierSilver,
	}
}

func TestDocumentStore_PutAndGet(t *testing.T) {
	store, err := NewDocumentStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	createdAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	doc := testDocument("doc-1", "fund-alpha", createdAt)

	require.NoError(t, store.Put(ctx, doc))

	got, err := store.Get(ctx, "doc-1", &createdAt, []string{"fund-alpha"})
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
}

func TestDocumentStore_GetWithoutDateHint(t *testing.T) {
	store, err := NewDocumentStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	doc := testDocument("doc-2", "fund-alpha", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.Put(ctx, doc))

	got, err := store.Get(ctx, "doc-2", nil, []string{"fund-alpha"})
	require.NoError(t, err)
	assert.Equal(t, "doc-2", got.DocumentID)
}

func TestDocumentStore_GetRespectsGroups(t *testing.T) {
	store, err := NewDocumentStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	doc := testDocument("doc-3", "fund-alpha", time.Now().UTC())
	require.NoError(t, store.Put(ctx, doc))

	_, err = store.Get(ctx, "doc-3", nil, []string{"fund-beta", "public"})
	require.Error(t, err)
	assert.Equal(t, models.ErrNotFound, models.CodeOf(err))
}

func TestDocumentStore_SoftDelete(t *testing.T) {
	store, err := NewDocumentStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	doc := testDocument("doc-4", "fund-alpha", time.Now().UTC())
	require.NoError(t, store.Put(ctx, doc))
	require.NoError(t, store.Delete(ctx, "doc-4", "fund-alpha"))

	_, err = store.Get(ctx, "doc-4", nil, []string{"fund-alpha"})
	require.Error(t, err)
	assert.Equal(t, models.ErrNotFound, models.CodeOf(err))
}

func TestDocumentStore_IterSkipsDeleted(t *testing.T) {
	store, err := NewDocumentStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	day := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, testDocument("doc-a", "fund-alpha", day)))
	require.NoError(t, store.Put(ctx, testDocument("doc-b", "fund-alpha", day)))
	require.NoError(t, store.Delete(ctx, "doc-b", "fund-alpha"))

	it, err := store.Iter(ctx, "fund-alpha", day.Add(-time.Hour), day.Add(time.Hour))
	require.NoError(t, err)
	defer it.Close()

	var ids []string
	for {
		doc, err := it.Next()
		require.NoError(t, err)
		if doc == nil {
			break
		}
		ids = append(ids, doc.DocumentID)
	}
	assert.Equal(t, []string{"doc-a"}, ids)
}

func TestDocumentStore_IterRespectsDateRange(t *testing.T) {
	store, err := NewDocumentStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, testDocument("doc-old", "fund-alpha", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, store.Put(ctx, testDocument("doc-new", "fund-alpha", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))))

	it, err := store.Iter(ctx, "fund-alpha",
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	defer it.Close()

	doc, err := it.Next()
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "doc-new", doc.DocumentID)

	doc, err = it.Next()
	require.NoError(t, err)
	assert.Nil(t, doc)
}
