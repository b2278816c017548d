package embeddings

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// Service turns documents into embedded chunks for the vector index. The
// document-level vector used by semantic dedup is the mean of the chunk
// vectors, so near-identical rewrites land close together even when their
// chunk boundaries differ.
type Service struct {
	chunker  *Chunker
	embedder interfaces.EmbeddingService
	logger   arbor.ILogger
}

// NewService creates the embedding service.
func NewService(config *common.Config, embedder interfaces.EmbeddingService, logger arbor.ILogger) *Service {
	return &Service{
		chunker:  NewChunker(&config.Embedding),
		embedder: embedder,
		logger:   logger,
	}
}

// ChunkDocument splits, embeds, and assembles the chunk records for one
// document. Returns the chunks and the document-level mean vector.
func (s *Service) ChunkDocument(ctx context.Context, doc *models.Document) ([]models.Chunk, []float32, error) {
	texts := s.chunker.Split(doc.Content)
	if len(texts) == 0 {
		return nil, nil, fmt.Errorf("document %s has no embeddable content", doc.DocumentID)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, err
	}
	if len(vectors) != len(texts) {
		return nil, nil, fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(texts), len(vectors))
	}

	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			ChunkID:     fmt.Sprintf("%s:%d", doc.DocumentID, i),
			DocumentID:  doc.DocumentID,
			GroupID:     doc.GroupID,
			SourceID:    doc.SourceID,
			Language:    doc.Language,
			CreatedAt:   doc.CreatedAt,
			ImpactScore: doc.ImpactScore,
			ImpactTier:  doc.ImpactTier,
			Ordinal:     i,
			Text:        text,
			Vector:      vectors[i],
		}
	}

	mean, err := meanVector(vectors)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Debug().
		Str("document_id", doc.DocumentID).
		Int("chunks", len(chunks)).
		Msg("Document chunked and embedded")

	return chunks, mean, nil
}

// EmbedQuery embeds one query string for search and semantic dedup.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.EmbedQuery(ctx, text)
}

func meanVector(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to average")
	}
	dim := len(vectors[0])
	mean := make([]float32, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector dimension mismatch: %d vs %d", len(v), dim)
		}
		for i, x := range v {
			mean[i] += x
		}
	}
	n := float32(len(vectors))
	for i := range mean {
		mean[i] /= n
	}
	return mean, nil
}
