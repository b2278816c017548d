package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// GraphStorage implements the typed property graph on badgerhold. Document
// nodes are denormalized (tickers, themes, event types as indexed slices)
// so candidate generation and dedup lookups are single store queries with
// the group predicate inside the query, never post-filtered.
type GraphStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewGraphStorage creates a new GraphStorage instance
func NewGraphStorage(db *BadgerDB, logger arbor.ILogger) interfaces.GraphStorage {
	return &GraphStorage{
		db:     db,
		logger: logger,
	}
}

// entityKey builds the canonical node key "<kind>/<id>".
func entityKey(kind, id string) string {
	return kind + "/" + id
}

// hashClaimKey builds the dedup claim key for a (group, content hash) pair.
func hashClaimKey(groupID, contentHash string) string {
	return "hash/" + groupID + "/" + contentHash
}

func sliceToIface(vals []string) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// Init seeds the taxonomy nodes for the controlled vocabularies. Idempotent.
func (s *GraphStorage) Init(ctx context.Context) error {
	now := time.Now().UTC()
	for theme := range models.ThemeVocabulary {
		node := &models.EntityNode{
			Key:       entityKey(models.NodeTheme, theme),
			Kind:      models.NodeTheme,
			Name:      theme,
			UpdatedAt: now,
		}
		if err := s.db.Store().Upsert(node.Key, node); err != nil {
			return fmt.Errorf("failed to seed theme node %s: %w", theme, err)
		}
	}
	for eventType, info := range models.EventVocabulary {
		node := &models.EntityNode{
			Key:  entityKey(models.NodeEventType, eventType),
			Kind: models.NodeEventType,
			Name: eventType,
			Props: map[string]any{
				"base_impact":     info.BaseImpact,
				"default_tier":    info.DefaultTier,
				"decay_half_life": info.DecayHalfLife,
			},
			UpdatedAt: now,
		}
		if err := s.db.Store().Upsert(node.Key, node); err != nil {
			return fmt.Errorf("failed to seed event type node %s: %w", eventType, err)
		}
	}
	s.logger.Debug().
		Int("themes", len(models.ThemeVocabulary)).
		Int("event_types", len(models.EventVocabulary)).
		Msg("Graph taxonomy seeded")
	return nil
}

// WriteDocument upserts the document node and its edges in one badger
// transaction. Failures leave no partial projection.
func (s *GraphStorage) WriteDocument(ctx context.Context, doc *models.Document) error {
	node := documentNodeFrom(doc)
	docKey := entityKey(models.NodeDocument, doc.DocumentID)

	edges := []*models.EntityEdge{
		edge(models.EdgeProducedBy, docKey, entityKey("Source", doc.SourceID), nil),
		edge(models.EdgeInGroup, docKey, entityKey("Group", doc.GroupID), nil),
	}
	for _, in := range doc.Extracted.Instruments {
		edges = append(edges, edge(models.EdgeAffects, docKey, entityKey(models.NodeInstrument, in.Ticker), map[string]any{
			"direction":  in.Direction,
			"magnitude":  in.Magnitude,
			"confidence": in.Confidence,
		}))
	}
	for _, ev := range doc.Extracted.Events {
		edges = append(edges, edge(models.EdgeTriggeredBy, docKey, entityKey(models.NodeEventType, ev.Type), map[string]any{
			"confidence": ev.Confidence,
		}))
	}
	for _, company := range doc.Extracted.Companies {
		edges = append(edges, edge(models.EdgeMentions, docKey, entityKey(models.NodeCompany, company), nil))
	}
	for _, theme := range doc.Extracted.Themes {
		edges = append(edges, edge(models.EdgeTaggedWith, docKey, entityKey(models.NodeTheme, theme), nil))
	}

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		if err := s.db.Store().TxUpsert(txn, node.DocumentID, node); err != nil {
			return err
		}
		for _, e := range edges {
			if err := s.db.Store().TxUpsert(txn, e.Key, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write document graph projection: %w", err)
	}
	return nil
}

func documentNodeFrom(doc *models.Document) *models.DocumentNode {
	return &models.DocumentNode{
		DocumentID:  doc.DocumentID,
		GroupID:     doc.GroupID,
		SourceID:    doc.SourceID,
		CreatedAt:   doc.CreatedAt,
		PublishedAt: doc.PublishedAt,
		Title:       doc.Title,
		Summary:     doc.Extracted.Summary,
		Language:    doc.Language,
		ContentHash: doc.ContentHash,
		Fingerprint: doc.StoryFingerprint,
		ImpactScore: doc.ImpactScore,
		ImpactTier:  doc.ImpactTier,
		Tickers:     doc.Extracted.AffectedTickers(),
		Companies:   doc.Extracted.Companies,
		Sectors:     doc.Extracted.Sectors,
		Themes:      doc.Extracted.Themes,
		EventTypes:  eventTypes(doc.Extracted.Events),
		DuplicateOf: doc.DuplicateOf,
	}
}

func eventTypes(events []models.ExtractedEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func edge(edgeType, from, to string, props map[string]any) *models.EntityEdge {
	return &models.EntityEdge{
		Key:       edgeType + "/" + from + "->" + to,
		Type:      edgeType,
		From:      from,
		To:        to,
		Props:     props,
		UpdatedAt: time.Now().UTC(),
	}
}

// DeleteDocument removes the node, its edges, and its hash claim. Missing
// records are ignored so rollback stays idempotent.
func (s *GraphStorage) DeleteDocument(ctx context.Context, documentID, groupID string) error {
	var node models.DocumentNode
	err := s.db.Store().Get(documentID, &node)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load document node: %w", err)
	}
	if node.GroupID != groupID {
		return models.NewServiceError(models.ErrAccessDenied, "document belongs to another group")
	}

	docKey := entityKey(models.NodeDocument, documentID)
	if err := s.db.Store().DeleteMatching(&models.EntityEdge{}, badgerhold.Where("From").Eq(docKey)); err != nil {
		return fmt.Errorf("failed to delete document edges: %w", err)
	}
	if err := s.db.Store().Delete(documentID, &models.DocumentNode{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete document node: %w", err)
	}
	if node.ContentHash != "" {
		if err := s.ReleaseContentHash(ctx, groupID, node.ContentHash); err != nil {
			s.logger.Warn().Err(err).Str("document_id", documentID).Msg("Failed to release content hash claim")
		}
	}
	return nil
}

// GetDocumentNode returns the projection, restricted to permitted groups
// inside the store query.
func (s *GraphStorage) GetDocumentNode(ctx context.Context, documentID string, groups []string) (*models.DocumentNode, error) {
	var node models.DocumentNode
	err := s.db.Store().FindOne(&node,
		badgerhold.Where(badgerhold.Key).Eq(documentID).And("GroupID").In(sliceToIface(groups)...))
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NewServiceError(models.ErrNotFound, "document not found")
		}
		return nil, fmt.Errorf("failed to get document node: %w", err)
	}
	return &node, nil
}

// ClaimContentHash inserts the (group, hash) claim. The keyed insert is the
// serialization point for duplicate races: exactly one writer wins.
func (s *GraphStorage) ClaimContentHash(ctx context.Context, groupID, contentHash, documentID string) (string, bool, error) {
	key := hashClaimKey(groupID, contentHash)
	claim := &models.HashClaim{
		Key:        key,
		DocumentID: documentID,
		ClaimedAt:  time.Now().UTC(),
	}
	err := s.db.Store().Insert(key, claim)
	if err == nil {
		return "", true, nil
	}
	if errors.Is(err, badgerhold.ErrKeyExists) {
		var existing models.HashClaim
		if getErr := s.db.Store().Get(key, &existing); getErr == nil {
			return existing.DocumentID, false, nil
		}
		return "", false, nil
	}
	return "", false, fmt.Errorf("failed to claim content hash: %w", err)
}

// ReleaseContentHash removes a claim during rollback.
func (s *GraphStorage) ReleaseContentHash(ctx context.Context, groupID, contentHash string) error {
	err := s.db.Store().Delete(hashClaimKey(groupID, contentHash), &models.HashClaim{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to release content hash claim: %w", err)
	}
	return nil
}

// LookupContentHash finds a live document with the hash in the window.
func (s *GraphStorage) LookupContentHash(ctx context.Context, groupID, contentHash string, since time.Time) (string, bool, error) {
	query := badgerhold.Where("ContentHash").Eq(contentHash).And("GroupID").Eq(groupID)
	if !since.IsZero() {
		query = query.And("CreatedAt").Ge(since)
	}
	var node models.DocumentNode
	err := s.db.Store().FindOne(&node, query)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("content hash lookup failed: %w", err)
	}
	return node.DocumentID, true, nil
}

// LookupFingerprint finds a live document with the story fingerprint in the
// window.
func (s *GraphStorage) LookupFingerprint(ctx context.Context, groupID, fingerprint string, since time.Time) (string, bool, error) {
	query := badgerhold.Where("Fingerprint").Eq(fingerprint).And("GroupID").Eq(groupID)
	if !since.IsZero() {
		query = query.And("CreatedAt").Ge(since)
	}
	var node models.DocumentNode
	err := s.db.Store().FindOne(&node, query)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("fingerprint lookup failed: %w", err)
	}
	return node.DocumentID, true, nil
}

func applyGraphFilter(query *badgerhold.Query, filter interfaces.GraphFilter) *badgerhold.Query {
	query = query.And("GroupID").In(sliceToIface(filter.Groups)...)
	if !filter.Since.IsZero() {
		query = query.And("CreatedAt").Ge(filter.Since)
	}
	if filter.MinImpactScore > 0 {
		query = query.And("ImpactScore").Ge(filter.MinImpactScore)
	}
	if len(filter.ImpactTiers) > 0 {
		query = query.And("ImpactTier").In(sliceToIface(filter.ImpactTiers)...)
	}
	return query
}

// DocumentsAffecting returns documents whose AFFECTS ticker set intersects
// tickers, filtered store-side including the mandatory group predicate.
func (s *GraphStorage) DocumentsAffecting(ctx context.Context, tickers []string, filter interfaces.GraphFilter) ([]interfaces.DocumentHit, error) {
	if len(tickers) == 0 {
		return nil, nil
	}
	query := applyGraphFilter(badgerhold.Where("Tickers").ContainsAny(sliceToIface(tickers)...), filter)

	var nodes []models.DocumentNode
	if err := s.db.Store().Find(&nodes, query); err != nil {
		return nil, fmt.Errorf("affects query failed: %w", err)
	}

	wanted := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		wanted[t] = true
	}
	hits := make([]interfaces.DocumentHit, 0, len(nodes))
	for _, node := range nodes {
		matched := ""
		for _, t := range node.Tickers {
			if wanted[t] {
				matched = t
				break
			}
		}
		hits = append(hits, interfaces.DocumentHit{Node: node, MatchedTicker: matched})
	}
	return hits, nil
}

// DocumentsTagged returns documents tagged with any of themes, filtered
// store-side.
func (s *GraphStorage) DocumentsTagged(ctx context.Context, themes []string, filter interfaces.GraphFilter) ([]interfaces.DocumentHit, error) {
	if len(themes) == 0 {
		return nil, nil
	}
	query := applyGraphFilter(badgerhold.Where("Themes").ContainsAny(sliceToIface(themes)...), filter)

	var nodes []models.DocumentNode
	if err := s.db.Store().Find(&nodes, query); err != nil {
		return nil, fmt.Errorf("themes query failed: %w", err)
	}

	wanted := make(map[string]bool, len(themes))
	for _, t := range themes {
		wanted[t] = true
	}
	hits := make([]interfaces.DocumentHit, 0, len(nodes))
	for _, node := range nodes {
		matched := ""
		for _, t := range node.Themes {
			if wanted[t] {
				matched = t
				break
			}
		}
		hits = append(hits, interfaces.DocumentHit{Node: node, MatchedTheme: matched})
	}
	return hits, nil
}

// LateralInstruments walks PEER_OF / SUPPLIER_OF / COMPETES_WITH company
// links and CONSTITUENT_OF index membership from the seed tickers. Depth is
// capped at 2: seed instrument -> issuer company -> related company ->
// related instrument counts as one lateral hop.
func (s *GraphStorage) LateralInstruments(ctx context.Context, seedTickers []string, maxDepth int) ([]interfaces.LateralHit, error) {
	if maxDepth <= 0 || len(seedTickers) == 0 {
		return nil, nil
	}
	if maxDepth > 2 {
		maxDepth = 2
	}

	seeds := make(map[string]bool, len(seedTickers))
	for _, t := range seedTickers {
		seeds[t] = true
	}

	found := make(map[string]interfaces.LateralHit)
	for _, ticker := range seedTickers {
		instr, err := s.instrumentByTicker(ticker)
		if err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return nil, err
		}

		// Issuer hop: instrument -> company.
		issuers, err := s.edgeTargets("From", instr.Key, models.EdgeIssuedBy)
		if err != nil {
			return nil, err
		}
		for _, companyKey := range issuers {
			for _, rel := range []struct {
				edgeType string
				reason   models.Reason
			}{
				{models.EdgePeerOf, models.ReasonPeer},
				{models.EdgeSupplierOf, models.ReasonSupplier},
				{models.EdgeCompetesWith, models.ReasonCompetitor},
			} {
				related, err := s.relatedCompanies(companyKey, rel.edgeType)
				if err != nil {
					return nil, err
				}
				for _, relatedKey := range related {
					tickers, err := s.companyInstrumentTickers(relatedKey)
					if err != nil {
						return nil, err
					}
					for _, t := range tickers {
						if seeds[t] {
							continue
						}
						if _, ok := found[t]; !ok {
							found[t] = interfaces.LateralHit{Ticker: t, Reason: rel.reason, Depth: 2}
						}
					}
				}
			}
		}

		// Index co-membership hop: instrument -> index -> constituents.
		indexes, err := s.edgeTargets("From", instr.Key, models.EdgeConstituentOf)
		if err != nil {
			return nil, err
		}
		for _, indexKey := range indexes {
			members, err := s.edgeTargets("To", indexKey, models.EdgeConstituentOf)
			if err != nil {
				return nil, err
			}
			for _, memberKey := range members {
				var member models.EntityNode
				if err := s.db.Store().Get(memberKey, &member); err != nil {
					continue
				}
				if member.Ticker == "" || seeds[member.Ticker] {
					continue
				}
				if _, ok := found[member.Ticker]; !ok {
					found[member.Ticker] = interfaces.LateralHit{Ticker: member.Ticker, Reason: models.ReasonPeer, Depth: 2}
				}
			}
		}
	}

	hits := make([]interfaces.LateralHit, 0, len(found))
	for _, hit := range found {
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *GraphStorage) instrumentByTicker(ticker string) (*models.EntityNode, error) {
	var node models.EntityNode
	err := s.db.Store().FindOne(&node,
		badgerhold.Where("Kind").Eq(models.NodeInstrument).And("Ticker").Eq(ticker))
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// edgeTargets returns the opposite endpoints of edges of edgeType anchored
// at key on side ("From" or "To").
func (s *GraphStorage) edgeTargets(side, key, edgeType string) ([]string, error) {
	var edges []models.EntityEdge
	err := s.db.Store().Find(&edges, badgerhold.Where(side).Eq(key).And("Type").Eq(edgeType))
	if err != nil {
		return nil, fmt.Errorf("edge query failed: %w", err)
	}
	targets := make([]string, 0, len(edges))
	for _, e := range edges {
		if side == "From" {
			targets = append(targets, e.To)
		} else {
			targets = append(targets, e.From)
		}
	}
	return targets, nil
}

// relatedCompanies follows a company-to-company edge type in both
// directions; peer and competitor links are symmetric in practice.
func (s *GraphStorage) relatedCompanies(companyKey, edgeType string) ([]string, error) {
	out, err := s.edgeTargets("From", companyKey, edgeType)
	if err != nil {
		return nil, err
	}
	in, err := s.edgeTargets("To", companyKey, edgeType)
	if err != nil {
		return nil, err
	}
	return append(out, in...), nil
}

func (s *GraphStorage) companyInstrumentTickers(companyKey string) ([]string, error) {
	instrKeys, err := s.edgeTargets("To", companyKey, models.EdgeIssuedBy)
	if err != nil {
		return nil, err
	}
	tickers := make([]string, 0, len(instrKeys))
	for _, key := range instrKeys {
		var node models.EntityNode
		if err := s.db.Store().Get(key, &node); err != nil {
			continue
		}
		if node.Ticker != "" {
			tickers = append(tickers, node.Ticker)
		}
	}
	return tickers, nil
}

// UpsertEntity writes an entity or taxonomy node.
func (s *GraphStorage) UpsertEntity(ctx context.Context, node *models.EntityNode) error {
	if node.Key == "" {
		node.Key = entityKey(node.Kind, node.Name)
	}
	node.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Upsert(node.Key, node); err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	return nil
}

// GetEntity returns an entity node by key.
func (s *GraphStorage) GetEntity(ctx context.Context, key string) (*models.EntityNode, error) {
	var node models.EntityNode
	if err := s.db.Store().Get(key, &node); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NewServiceError(models.ErrNotFound, "entity not found")
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return &node, nil
}

// UpsertEntityEdge writes a typed relationship between two entities.
func (s *GraphStorage) UpsertEntityEdge(ctx context.Context, e *models.EntityEdge) error {
	if e.Key == "" {
		e.Key = e.Type + "/" + e.From + "->" + e.To
	}
	e.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Upsert(e.Key, e); err != nil {
		return fmt.Errorf("failed to upsert edge: %w", err)
	}
	return nil
}

// UpsertAlias binds (scheme, value) to an entity. The alias key enforces
// the at-most-one-target invariant: rebinding to a different entity fails.
func (s *GraphStorage) UpsertAlias(ctx context.Context, scheme, value, entityKeyTarget string) error {
	key := scheme + "/" + value
	var existing models.AliasRecord
	err := s.db.Store().Get(key, &existing)
	if err == nil {
		if existing.EntityKey != entityKeyTarget {
			return models.NewServiceError(models.ErrSchemaViolation,
				fmt.Sprintf("alias %s already bound to another entity", key))
		}
		return nil
	}
	if !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("alias lookup failed: %w", err)
	}

	record := &models.AliasRecord{
		Key:       key,
		Scheme:    scheme,
		Value:     value,
		EntityKey: entityKeyTarget,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Store().Insert(key, record); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			// Lost a race; re-check the winner's binding.
			return s.UpsertAlias(ctx, scheme, value, entityKeyTarget)
		}
		return fmt.Errorf("failed to insert alias: %w", err)
	}
	return nil
}

// ResolveAlias looks up a (scheme, value) pair.
func (s *GraphStorage) ResolveAlias(ctx context.Context, scheme, value string) (string, bool, error) {
	var record models.AliasRecord
	err := s.db.Store().Get(scheme+"/"+value, &record)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("alias lookup failed: %w", err)
	}
	return record.EntityKey, true, nil
}

// KnownTickers returns the instrument universe for the regex fallback scan.
func (s *GraphStorage) KnownTickers(ctx context.Context) ([]string, error) {
	var nodes []models.EntityNode
	err := s.db.Store().Find(&nodes, badgerhold.Where("Kind").Eq(models.NodeInstrument))
	if err != nil {
		return nil, fmt.Errorf("instrument query failed: %w", err)
	}
	tickers := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if node.Ticker != "" {
			tickers = append(tickers, node.Ticker)
		}
	}
	return tickers, nil
}
