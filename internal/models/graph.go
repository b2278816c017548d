package models

import "time"

// Node kinds in the typed property graph.
const (
	NodeDocument   = "Document"
	NodeInstrument = "Instrument"
	NodeCompany    = "Company"
	NodeSector     = "Sector"
	NodeRegion     = "Region"
	NodeFactor     = "Factor"
	NodeIndex      = "Index"
	NodeEventType  = "EventType"
	NodeTheme      = "Theme"
)

// Edge types, directed.
const (
	EdgeProducedBy    = "PRODUCED_BY"
	EdgeInGroup       = "IN_GROUP"
	EdgeAffects       = "AFFECTS"
	EdgeTriggeredBy   = "TRIGGERED_BY"
	EdgeMentions      = "MENTIONS"
	EdgeTaggedWith    = "TAGGED_WITH"
	EdgeIssuedBy      = "ISSUED_BY"
	EdgeBelongsTo     = "BELONGS_TO"
	EdgePeerOf        = "PEER_OF"
	EdgeSupplierOf    = "SUPPLIER_OF"
	EdgeCompetesWith  = "COMPETES_WITH"
	EdgeConstituentOf = "CONSTITUENT_OF"
	EdgeHasAlias      = "HAS_ALIAS"
	EdgeBenchmarkedTo = "BENCHMARKED_TO"
	EdgeExcludes      = "EXCLUDES"
)

// Instrument types.
const (
	InstrumentStock  = "STOCK"
	InstrumentADR    = "ADR"
	InstrumentETF    = "ETF"
	InstrumentREIT   = "REIT"
	InstrumentCrypto = "CRYPTO"
	InstrumentIndex  = "INDEX"
)

// EntityNode is a global (ungrouped) graph node: instruments, companies,
// taxonomy. The key is "<kind>/<canonical id>".
type EntityNode struct {
	Key       string         `json:"key" badgerhold:"key"`
	Kind      string         `json:"kind" badgerholdIndex:"Kind"`
	Name      string         `json:"name"`
	Ticker    string         `json:"ticker,omitempty" badgerholdIndex:"Ticker"`
	Props     map[string]any `json:"props,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EntityEdge is a typed relationship between two entity nodes, keyed
// "<type>/<from>-><to>" so upserts are idempotent.
type EntityEdge struct {
	Key       string         `json:"key" badgerhold:"key"`
	Type      string         `json:"type" badgerholdIndex:"Type"`
	From      string         `json:"from" badgerholdIndex:"From"`
	To        string         `json:"to" badgerholdIndex:"To"`
	Props     map[string]any `json:"props,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// DocumentNode is the graph projection of one document. Denormalized ticker,
// theme and event-type sets keep candidate generation a single indexed
// query; the canonical file store remains the source of truth.
type DocumentNode struct {
	DocumentID  string    `json:"document_id" badgerhold:"key"`
	GroupID     string    `json:"group_id" badgerholdIndex:"GroupID"`
	SourceID    string    `json:"source_id" badgerholdIndex:"SourceID"`
	CreatedAt   time.Time `json:"created_at" badgerholdIndex:"CreatedAt"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Language    string    `json:"language"`
	ContentHash string    `json:"content_hash" badgerholdIndex:"ContentHash"`
	Fingerprint string    `json:"fingerprint" badgerholdIndex:"Fingerprint"`
	ImpactScore int       `json:"impact_score"`
	ImpactTier  string    `json:"impact_tier" badgerholdIndex:"ImpactTier"`
	Tickers     []string  `json:"tickers,omitempty"`
	Companies   []string  `json:"companies,omitempty"`
	Sectors     []string  `json:"sectors,omitempty"`
	Themes      []string  `json:"themes,omitempty"`
	EventTypes  []string  `json:"event_types,omitempty"`
	DuplicateOf string    `json:"duplicate_of,omitempty"`
}

// HashClaim serializes duplicate races: exactly one ingest per
// (group, content hash) wins the keyed insert; losers see DUPLICATE.
type HashClaim struct {
	Key        string    `json:"key" badgerhold:"key"` // hash/<group>/<content_hash>
	DocumentID string    `json:"document_id"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

// AliasRecord maps a (scheme, value) surface identifier to one canonical
// entity node. The key enforces the at-most-one-target invariant.
type AliasRecord struct {
	Key       string    `json:"key" badgerhold:"key"` // <scheme>/<normalized value>
	Scheme    string    `json:"scheme" badgerholdIndex:"Scheme"`
	Value     string    `json:"value"`
	EntityKey string    `json:"entity_key" badgerholdIndex:"EntityKey"`
	CreatedAt time.Time `json:"created_at"`
}

// Alias schemes.
const (
	SchemeTicker = "ticker"
	SchemeISIN   = "isin"
	SchemeName   = "name"
	SchemeFirm   = "firm"
)
