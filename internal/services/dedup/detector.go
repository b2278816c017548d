package dedup

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// Detector runs the three duplicate tiers in cheapest-first order: exact
// content hash, structural story fingerprint, then semantic similarity over
// the vector index. Each tier is scoped to the ingesting group and its own
// time window.
type Detector struct {
	graph             interfaces.GraphStorage
	vector            interfaces.VectorStorage
	hashWindow        time.Duration // 0 = unbounded
	fingerprintWindow time.Duration
	semanticWindow    time.Duration
	semanticThreshold float64
	logger            arbor.ILogger
}

// NewDetector creates the duplicate detector.
func NewDetector(config *common.Config, graph interfaces.GraphStorage, vector interfaces.VectorStorage, logger arbor.ILogger) *Detector {
	return &Detector{
		graph:             graph,
		vector:            vector,
		hashWindow:        time.Duration(config.Dedup.HashWindowHours) * time.Hour,
		fingerprintWindow: time.Duration(config.Dedup.FingerprintWindowHours) * time.Hour,
		semanticWindow:    time.Duration(config.Dedup.SemanticWindowHours) * time.Hour,
		semanticThreshold: config.Dedup.SemanticThreshold,
		logger:            logger,
	}
}

func windowStart(window time.Duration) time.Time {
	if window <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().Add(-window)
}

// CheckHash looks up the normalized content hash in the graph index.
func (d *Detector) CheckHash(ctx context.Context, groupID, contentHash string) (*models.DuplicateInfo, error) {
	docID, found, err := d.graph.LookupContentHash(ctx, groupID, contentHash, windowStart(d.hashWindow))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &models.DuplicateInfo{
		Tier:       models.DupTierHash,
		DocumentID: docID,
		Score:      1.0,
	}, nil
}

// CheckFingerprint looks up the structural story fingerprint. An empty
// fingerprint (no affected tickers) never matches.
func (d *Detector) CheckFingerprint(ctx context.Context, groupID, fingerprint string) (*models.DuplicateInfo, error) {
	if fingerprint == "" {
		return nil, nil
	}
	docID, found, err := d.graph.LookupFingerprint(ctx, groupID, fingerprint, windowStart(d.fingerprintWindow))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &models.DuplicateInfo{
		Tier:       models.DupTierFingerprint,
		DocumentID: docID,
	}, nil
}

// CheckSemantic searches the vector index with the document-level vector,
// restricted to the group and the semantic window. A best match at or above
// the similarity threshold is a duplicate.
func (d *Detector) CheckSemantic(ctx context.Context, groupID string, queryVector []float32, excludeDocID string) (*models.DuplicateInfo, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}
	matches, err := d.vector.Search(ctx, queryVector, 1, models.VectorFilter{
		Groups:       []string{groupID},
		Since:        windowStart(d.semanticWindow),
		ExcludeDocID: excludeDocID,
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 || matches[0].Similarity < d.semanticThreshold {
		return nil, nil
	}

	best := matches[0]
	d.logger.Debug().
		Str("group_id", groupID).
		Str("match", best.DocumentID).
		Float64("similarity", best.Similarity).
		Msg("Semantic duplicate detected")

	return &models.DuplicateInfo{
		Tier:       models.DupTierSemantic,
		DocumentID: best.DocumentID,
		Score:      best.Similarity,
	}, nil
}
