package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
	"github.com/finwire/finwire/internal/services/dedup"
	"github.com/finwire/finwire/internal/services/embeddings"
)

// Pipeline runs one document through validation, three-tier dedup, LLM
// extraction, embedding, and the three stores. Failures after the canonical
// write roll back in reverse order; a document is either fully indexed or
// absent.
type Pipeline struct {
	config    *common.Config
	storage   interfaces.StorageManager
	extractor interfaces.ExtractionService
	embedder  *embeddings.Service
	detector  interfaces.DuplicateDetector
	aliases   interfaces.AliasResolver
	events    interfaces.EventPublisher
	validate  *validator.Validate
	workers   chan struct{}
	logger    arbor.ILogger
}

// NewPipeline creates the ingest pipeline. Concurrent runs are bounded by
// ingest.workers.
func NewPipeline(
	config *common.Config,
	storage interfaces.StorageManager,
	extractor interfaces.ExtractionService,
	embedder *embeddings.Service,
	detector interfaces.DuplicateDetector,
	aliases interfaces.AliasResolver,
	events interfaces.EventPublisher,
	logger arbor.ILogger,
) *Pipeline {
	workers := config.Ingest.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		config:    config,
		storage:   storage,
		extractor: extractor,
		embedder:  embedder,
		detector:  detector,
		aliases:   aliases,
		events:    events,
		validate:  validator.New(),
		workers:   make(chan struct{}, workers),
		logger:    logger,
	}
}

// run tracks the mutable state of one pipeline execution.
type run struct {
	req         *models.IngestRequest
	auth        *models.AuthContext
	doc         *models.Document
	contentHash string
	fingerprint string
	chunks      []models.Chunk
	docVector   []float32
	claimed     bool
	warnings    []string
	duplicate   *models.DuplicateInfo
}

// storyDate is the date term of the story fingerprint: published time when
// the source carries one, ingest time otherwise.
func (r *run) storyDate() time.Time {
	if r.doc.PublishedAt != nil {
		return *r.doc.PublishedAt
	}
	return r.doc.CreatedAt
}

// Ingest executes the full pipeline for one request. The terminal result is
// success, duplicate, or failed; partial indexing never survives.
func (p *Pipeline) Ingest(ctx context.Context, auth *models.AuthContext, req *models.IngestRequest) (*models.IngestResult, error) {
	select {
	case p.workers <- struct{}{}:
		defer func() { <-p.workers }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r := &run{req: req, auth: auth}
	result, err := p.execute(ctx, r)
	if err != nil {
		p.publish("ingest.failed", map[string]any{
			"stage": string(stageOf(err)),
			"code":  string(models.CodeOf(err)),
		})
		return nil, err
	}
	return result, nil
}

// stageError tags an error with the stage it occurred in.
type stageError struct {
	stage models.Stage
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

func atStage(stage models.Stage, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

func stageOf(err error) models.Stage {
	if se, ok := err.(*stageError); ok {
		return se.stage
	}
	return ""
}

func (p *Pipeline) execute(ctx context.Context, r *run) (*models.IngestResult, error) {
	if err := p.stageValidate(ctx, r); err != nil {
		return nil, atStage(models.StageValidate, err)
	}

	if result, err := p.stageHashCheck(ctx, r); err != nil {
		return nil, atStage(models.StageHashCheck, err)
	} else if result != nil {
		return result, nil
	}

	if err := p.stageExtract(ctx, r); err != nil {
		p.releaseClaim(r)
		return nil, atStage(models.StageExtract, err)
	}

	if result, err := p.stageFingerprintCheck(ctx, r); err != nil {
		p.releaseClaim(r)
		return nil, atStage(models.StageFingerprintCheck, err)
	} else if result != nil {
		return result, nil
	}

	if err := p.stageAliasResolve(ctx, r); err != nil {
		p.releaseClaim(r)
		return nil, atStage(models.StageAliasResolve, err)
	}

	if result, err := p.stageEmbedAndSemanticCheck(ctx, r); err != nil {
		p.releaseClaim(r)
		return nil, atStage(models.StageEmbedSemantic, err)
	} else if result != nil {
		return result, nil
	}

	if err := p.storage.Canonical().Put(ctx, r.doc); err != nil {
		p.releaseClaim(r)
		return nil, atStage(models.StageWriteCanonical, err)
	}

	if err := p.storage.Graph().WriteDocument(ctx, r.doc); err != nil {
		p.rollback(r, models.StageWriteGraph)
		return nil, atStage(models.StageWriteGraph, models.WrapServiceError(models.ErrStoreWriteFailed, "graph write failed", err))
	}

	if err := p.storage.Vector().PutChunks(ctx, r.chunks); err != nil {
		p.rollback(r, models.StageWriteVector)
		return nil, atStage(models.StageWriteVector, models.WrapServiceError(models.ErrStoreWriteFailed, "vector write failed", err))
	}

	status := models.IngestSuccess
	if r.duplicate != nil {
		status = models.IngestDuplicate
	}
	p.publish("ingest.done", map[string]any{
		"document_id":  r.doc.DocumentID,
		"group_id":     r.doc.GroupID,
		"impact_score": r.doc.ImpactScore,
		"status":       string(status),
	})
	p.logger.Info().
		Str("document_id", r.doc.DocumentID).
		Str("group_id", r.doc.GroupID).
		Int("impact_score", r.doc.ImpactScore).
		Int("chunks", len(r.chunks)).
		Msg("Document ingested")

	return &models.IngestResult{
		Status:      status,
		DocumentID:  r.doc.DocumentID,
		GroupID:     r.doc.GroupID,
		DuplicateOf: r.doc.DuplicateOf,
		Duplicate:   r.duplicate,
		Warnings:    r.warnings,
	}, nil
}

// stageValidate checks the payload, resolves the target group, and verifies
// the source exists. No side effects.
func (p *Pipeline) stageValidate(ctx context.Context, r *run) error {
	if err := p.validate.Struct(r.req); err != nil {
		return models.WrapServiceError(models.ErrInvalidInput, "invalid ingest payload", err)
	}

	words := models.CountWords(r.req.Content)
	if words > models.MaxDocumentWords {
		return models.NewServiceError(models.ErrWordLimit,
			fmt.Sprintf("content has %d words, limit is %d", words, models.MaxDocumentWords)).
			WithDetail("word_count", words)
	}
	if len(r.req.Metadata) > models.MaxMetadataKeys {
		return models.NewServiceError(models.ErrSchemaViolation,
			fmt.Sprintf("metadata has %d keys, limit is %d", len(r.req.Metadata), models.MaxMetadataKeys))
	}

	groupID := r.req.GroupID
	if groupID == "" {
		groupID = r.auth.WriteGroup
	}
	if groupID == "" || !r.auth.CanWrite(groupID) {
		return models.NewServiceError(models.ErrAccessDenied,
			fmt.Sprintf("caller may not write into group %q", groupID))
	}

	if _, err := p.storage.Sources().GetSource(ctx, r.req.SourceID); err != nil {
		return err
	}

	language := r.req.Language
	if language == "" {
		language = "en"
	}

	r.doc = &models.Document{
		DocumentID:  common.NewDocumentID(),
		Version:     1,
		SourceID:    r.req.SourceID,
		GroupID:     groupID,
		CreatedAt:   time.Now().UTC(),
		PublishedAt: r.req.PublishedAt,
		Language:    language,
		Title:       strings.TrimSpace(r.req.Title),
		Content:     r.req.Content,
		WordCount:   words,
		Metadata:    r.req.Metadata,
	}
	return nil
}

// stageHashCheck computes the content hash, checks tier 1, and claims the
// (group, hash) key. The keyed claim serializes concurrent ingests of the
// same content: exactly one run proceeds as the winner.
func (p *Pipeline) stageHashCheck(ctx context.Context, r *run) (*models.IngestResult, error) {
	r.contentHash = dedup.ContentHash(r.doc.Content)
	r.doc.ContentHash = r.contentHash

	dup, err := p.detector.CheckHash(ctx, r.doc.GroupID, r.contentHash)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return p.duplicateOutcome(r, dup)
	}

	existingDocID, won, err := p.storage.Graph().ClaimContentHash(ctx, r.doc.GroupID, r.contentHash, r.doc.DocumentID)
	if err != nil {
		return nil, models.WrapServiceError(models.ErrStoreWriteFailed, "hash claim failed", err)
	}
	if !won {
		// Lost the race to a concurrent ingest of the same bytes.
		return p.duplicateOutcome(r, &models.DuplicateInfo{
			Tier:       models.DupTierHash,
			DocumentID: existingDocID,
			Score:      1.0,
		})
	}
	r.claimed = true
	return nil, nil
}

// stageExtract runs LLM extraction and derives impact tier and fingerprint
// inputs.
func (p *Pipeline) stageExtract(ctx context.Context, r *run) error {
	extracted, score, warnings, err := p.extractor.Extract(ctx, r.doc.Title, r.doc.Content)
	if err != nil {
		return err
	}
	r.doc.Extracted = *extracted
	r.doc.ImpactScore = score
	r.doc.ImpactTier = models.TierForScore(score)
	r.warnings = append(r.warnings, warnings...)
	return nil
}

// stageFingerprintCheck checks tier 2, the structural story fingerprint.
func (p *Pipeline) stageFingerprintCheck(ctx context.Context, r *run) (*models.IngestResult, error) {
	r.fingerprint = dedup.StoryFingerprint(&r.doc.Extracted, r.storyDate())
	r.doc.StoryFingerprint = r.fingerprint

	dup, err := p.detector.CheckFingerprint(ctx, r.doc.GroupID, r.fingerprint)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return p.duplicateOutcome(r, dup)
	}
	return nil, nil
}

var tickerTokenRe = regexp.MustCompile(`\b[A-Z]{1,5}\b`)

// stageAliasResolve validates extracted tickers against the instrument
// universe. Under strict validation, unresolved tickers are dropped with a
// warning so phantom nodes never enter the graph. The regex fallback then
// scans the raw text for known tickers the model missed.
func (p *Pipeline) stageAliasResolve(ctx context.Context, r *run) error {
	kept := make([]models.ExtractedInstrument, 0, len(r.doc.Extracted.Instruments))
	present := make(map[string]bool, len(r.doc.Extracted.Instruments))
	for _, in := range r.doc.Extracted.Instruments {
		_, _, ok, err := p.aliases.Resolve(ctx, in.Ticker, models.SchemeTicker)
		if err != nil {
			return err
		}
		if !ok && p.config.Ingest.StrictTickerValidation {
			r.warnings = append(r.warnings, fmt.Sprintf("dropped unresolved ticker %q", in.Ticker))
			continue
		}
		kept = append(kept, in)
		present[in.Ticker] = true
	}

	if p.config.Ingest.RegexTickerFallback {
		found, err := p.regexTickerScan(ctx, r.doc.Title+" "+r.doc.Content, present)
		if err != nil {
			return err
		}
		kept = append(kept, found...)
	}

	r.doc.Extracted.Instruments = kept
	// Fingerprint inputs may have changed with the instrument set.
	r.fingerprint = dedup.StoryFingerprint(&r.doc.Extracted, r.storyDate())
	r.doc.StoryFingerprint = r.fingerprint
	return nil
}

// regexTickerScan finds universe tickers mentioned verbatim in the text.
func (p *Pipeline) regexTickerScan(ctx context.Context, text string, present map[string]bool) ([]models.ExtractedInstrument, error) {
	known, err := p.storage.Graph().KnownTickers(ctx)
	if err != nil {
		return nil, err
	}
	universe := make(map[string]bool, len(known))
	for _, t := range known {
		universe[t] = true
	}

	var found []models.ExtractedInstrument
	for _, token := range tickerTokenRe.FindAllString(text, -1) {
		if present[token] || !universe[token] {
			continue
		}
		present[token] = true
		found = append(found, models.ExtractedInstrument{
			Ticker:        token,
			Direction:     "neutral",
			Magnitude:     0,
			Confidence:    0.5,
			RegexDetected: true,
		})
	}
	return found, nil
}

// stageEmbedAndSemanticCheck chunks and embeds the document, then runs the
// tier 3 semantic check with the document-level vector.
func (p *Pipeline) stageEmbedAndSemanticCheck(ctx context.Context, r *run) (*models.IngestResult, error) {
	chunks, docVector, err := p.embedder.ChunkDocument(ctx, r.doc)
	if err != nil {
		return nil, err
	}
	r.chunks = chunks
	r.docVector = docVector

	dup, err := p.detector.CheckSemantic(ctx, r.doc.GroupID, docVector, r.doc.DocumentID)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return p.duplicateOutcome(r, dup)
	}
	return nil, nil
}

// duplicateOutcome applies the configured duplicate mode. Skip rejects with
// no side effects; flag stores the document with duplicate_of set and the
// pipeline continues.
func (p *Pipeline) duplicateOutcome(r *run, dup *models.DuplicateInfo) (*models.IngestResult, error) {
	if p.config.Dedup.Mode == models.DupModeSkip {
		p.releaseClaim(r)
		p.publish("ingest.duplicate", map[string]any{
			"tier":         dup.Tier,
			"duplicate_of": dup.DocumentID,
			"group_id":     r.doc.GroupID,
		})
		return &models.IngestResult{
			Status:      models.IngestDuplicate,
			GroupID:     r.doc.GroupID,
			DuplicateOf: dup.DocumentID,
			Duplicate:   dup,
			Warnings:    r.warnings,
		}, nil
	}

	// Flag mode: record the link and keep going.
	r.duplicate = dup
	r.doc.DuplicateOf = dup.DocumentID
	if dup.Score > 0 {
		score := dup.Score
		r.doc.DuplicateScore = &score
	}
	return nil, nil
}

// releaseClaim undoes the hash claim on any exit before DONE.
func (p *Pipeline) releaseClaim(r *run) {
	if !r.claimed {
		return
	}
	r.claimed = false
	if err := p.storage.Graph().ReleaseContentHash(context.Background(), r.doc.GroupID, r.contentHash); err != nil {
		p.logger.Warn().Err(err).Str("document_id", r.doc.DocumentID).Msg("Failed to release hash claim")
	}
}

// rollback deletes partial writes in reverse order. Rollback runs on a
// background context so a cancelled request still cleans up.
func (p *Pipeline) rollback(r *run, failedAt models.Stage) {
	ctx := context.Background()

	if failedAt == models.StageWriteVector {
		if err := p.storage.Vector().DeleteDocument(ctx, r.doc.DocumentID); err != nil {
			p.logger.Warn().Err(err).Str("document_id", r.doc.DocumentID).Msg("Rollback: vector delete failed")
		}
		if err := p.storage.Graph().DeleteDocument(ctx, r.doc.DocumentID, r.doc.GroupID); err != nil {
			p.logger.Warn().Err(err).Str("document_id", r.doc.DocumentID).Msg("Rollback: graph delete failed")
		}
		r.claimed = false // released with the graph projection
	}
	if failedAt == models.StageWriteGraph {
		if err := p.storage.Graph().DeleteDocument(ctx, r.doc.DocumentID, r.doc.GroupID); err != nil {
			p.logger.Warn().Err(err).Str("document_id", r.doc.DocumentID).Msg("Rollback: graph delete failed")
		}
	}
	if err := p.storage.Canonical().Delete(ctx, r.doc.DocumentID, r.doc.GroupID); err != nil {
		p.logger.Warn().Err(err).Str("document_id", r.doc.DocumentID).Msg("Rollback: canonical delete failed")
	}
	p.releaseClaim(r)

	p.publish("ingest.rolled_back", map[string]any{
		"document_id": r.doc.DocumentID,
		"failed_at":   string(failedAt),
	})
	p.logger.Warn().
		Str("document_id", r.doc.DocumentID).
		Str("failed_at", string(failedAt)).
		Msg("Pipeline rolled back")
}

func (p *Pipeline) publish(eventType string, data map[string]any) {
	if p.events == nil {
		return
	}
	p.events.Publish(interfaces.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}
