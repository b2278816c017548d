package interfaces

import (
	"context"
	"time"

	"github.com/finwire/finwire/internal/models"
)

// CanonicalStore is the append-only, content-addressed document store:
// documents/{group_id}/{yyyy-mm-dd}/{document_id}.json, one file per
// version. It is the source of truth; graph and vector indexes are
// projections that can be rebuilt from it.
type CanonicalStore interface {
	// Put atomically writes one document version (write-temp, fsync,
	// rename) and returns after the file is durable.
	Put(ctx context.Context, doc *models.Document) error

	// Get returns a stored document. A date hint narrows the partition
	// scan. Lookups are restricted to the supplied permitted groups.
	Get(ctx context.Context, documentID string, dateHint *time.Time, groups []string) (*models.Document, error)

	// Delete soft-deletes via a marker file; the underlying bytes are
	// retained.
	Delete(ctx context.Context, documentID, groupID string) error

	// Iter streams documents of one group over a date range for
	// reconciliation. The iterator is lazy, finite, and non-restartable.
	Iter(ctx context.Context, groupID string, from, to time.Time) (DocumentIterator, error)
}

// DocumentIterator walks canonical files lazily.
type DocumentIterator interface {
	// Next returns the next document, or (nil, nil) when exhausted.
	Next() (*models.Document, error)
	Close() error
}

// DocumentHit is a candidate row returned by graph candidate queries.
type DocumentHit struct {
	Node          models.DocumentNode
	MatchedTicker string
	MatchedTheme  string
}

// GraphFilter bounds graph candidate queries. Groups is mandatory; the
// group predicate is applied inside the store query, never in application
// memory.
type GraphFilter struct {
	Groups         []string
	Since          time.Time
	MinImpactScore int
	ImpactTiers    []string
}

// LateralHit is one instrument reached by a bounded graph traversal from a
// seed instrument.
type LateralHit struct {
	Ticker string
	Reason models.Reason // PEER, SUPPLIER, COMPETITOR
	Depth  int
}

// GraphStorage owns the typed property graph: documents, entities, taxonomy,
// aliases, and the dedup claims that serialize concurrent ingests.
type GraphStorage interface {
	// Init creates indexes and seeds reserved taxonomy nodes. Idempotent.
	Init(ctx context.Context) error

	// WriteDocument upserts the document node and all its edges in one
	// transaction.
	WriteDocument(ctx context.Context, doc *models.Document) error

	// DeleteDocument removes the document node, its edges, and its hash
	// claim. Used both by admin delete and by pipeline rollback.
	DeleteDocument(ctx context.Context, documentID, groupID string) error

	// GetDocumentNode returns the graph projection of a document,
	// restricted to the permitted groups.
	GetDocumentNode(ctx context.Context, documentID string, groups []string) (*models.DocumentNode, error)

	// ClaimContentHash inserts the (group, hash) claim. Exactly one caller
	// wins a race; losers get won=false and the winning document id.
	ClaimContentHash(ctx context.Context, groupID, contentHash, documentID string) (existingDocID string, won bool, err error)

	// ReleaseContentHash removes a claim during rollback.
	ReleaseContentHash(ctx context.Context, groupID, contentHash string) error

	// LookupContentHash finds a live document with the hash inside the
	// window. A zero since means unbounded.
	LookupContentHash(ctx context.Context, groupID, contentHash string, since time.Time) (documentID string, ok bool, err error)

	// LookupFingerprint finds a live document with the story fingerprint
	// inside the window.
	LookupFingerprint(ctx context.Context, groupID, fingerprint string, since time.Time) (documentID string, ok bool, err error)

	// DocumentsAffecting returns documents whose AFFECTS set intersects
	// tickers, filtered store-side.
	DocumentsAffecting(ctx context.Context, tickers []string, filter GraphFilter) ([]DocumentHit, error)

	// DocumentsTagged returns documents tagged with any of themes,
	// filtered store-side.
	DocumentsTagged(ctx context.Context, themes []string, filter GraphFilter) ([]DocumentHit, error)

	// LateralInstruments walks PEER_OF / ISSUED_BY / CONSTITUENT_OF up to
	// maxDepth (capped at 2) from the seed tickers.
	LateralInstruments(ctx context.Context, seedTickers []string, maxDepth int) ([]LateralHit, error)

	// Entity and taxonomy management.
	UpsertEntity(ctx context.Context, node *models.EntityNode) error
	GetEntity(ctx context.Context, key string) (*models.EntityNode, error)
	UpsertEntityEdge(ctx context.Context, edge *models.EntityEdge) error

	// Alias resolution. UpsertAlias fails when the (scheme, value) pair
	// already points at a different entity.
	UpsertAlias(ctx context.Context, scheme, value, entityKey string) error
	ResolveAlias(ctx context.Context, scheme, value string) (entityKey string, ok bool, err error)

	// KnownTickers returns the instrument universe for the regex fallback
	// scan.
	KnownTickers(ctx context.Context) ([]string, error)
}

// VectorStorage is the chunked embedding index with store-side metadata
// filtering.
type VectorStorage interface {
	// PutChunks writes all chunks of one document atomically.
	PutChunks(ctx context.Context, chunks []models.Chunk) error

	// Search returns up to k documents by cosine similarity, best chunk
	// per document, with the filter's group predicate applied in the
	// store query.
	Search(ctx context.Context, vector []float32, k int, filter models.VectorFilter) ([]models.VectorMatch, error)

	// DeleteDocument removes every chunk of the document.
	DeleteDocument(ctx context.Context, documentID string) error

	// ChunkCount reports stored chunks for a document (reconciliation).
	ChunkCount(ctx context.Context, documentID string) (int, error)
}

// GroupStorage manages permission groups.
type GroupStorage interface {
	SaveGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	GetGroupByName(ctx context.Context, name string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]*models.Group, error)
}

// TokenStorage manages token issuance and revocation records.
type TokenStorage interface {
	SaveToken(ctx context.Context, token *models.TokenRecord) error
	GetToken(ctx context.Context, tokenID string) (*models.TokenRecord, error)
	RevokeToken(ctx context.Context, tokenID string) error
}

// SourceStorage manages global source attribution records.
type SourceStorage interface {
	SaveSource(ctx context.Context, source *models.Source) error
	GetSource(ctx context.Context, sourceID string) (*models.Source, error)
	ListSources(ctx context.Context) ([]*models.Source, error)
	DeleteSource(ctx context.Context, sourceID string) error
}

// ClientStorage manages client books. Reads are group-filtered store-side.
type ClientStorage interface {
	SaveClient(ctx context.Context, client *models.Client) error
	GetClient(ctx context.Context, clientID string, groups []string) (*models.Client, error)
	ListClients(ctx context.Context, groups []string) ([]*models.Client, error)
	DeleteClient(ctx context.Context, clientID string, groups []string) error
}

// StorageManager aggregates every store behind one lifecycle.
type StorageManager interface {
	Canonical() CanonicalStore
	Graph() GraphStorage
	Vector() VectorStorage
	Groups() GroupStorage
	Tokens() TokenStorage
	Sources() SourceStorage
	Clients() ClientStorage
	Close() error
}
