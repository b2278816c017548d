package badger

import (
	"context"
	"fmt"
	"math"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// VectorStorage stores document chunks with their embeddings as badgerhold
// records. Metadata filters (group, window, impact) run as store predicates;
// cosine similarity is then computed over the filtered candidate set only.
type VectorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewVectorStorage creates a new VectorStorage instance
func NewVectorStorage(db *BadgerDB, logger arbor.ILogger) interfaces.VectorStorage {
	return &VectorStorage{
		db:     db,
		logger: logger,
	}
}

// PutChunks writes all chunks of one document in a single transaction.
func (s *VectorStorage) PutChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		for i := range chunks {
			if err := s.db.Store().TxUpsert(txn, chunks[i].ChunkID, &chunks[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write chunks: %w", err)
	}
	return nil
}

// Search scans group-filtered chunks and returns the top k documents by
// cosine similarity, keeping the best chunk per document.
func (s *VectorStorage) Search(ctx context.Context, vector []float32, k int, filter models.VectorFilter) ([]models.VectorMatch, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}
	if len(filter.Groups) == 0 {
		return nil, models.NewServiceError(models.ErrAccessDenied, "vector search requires a permitted group set")
	}

	query := badgerhold.Where("GroupID").In(sliceToIface(filter.Groups)...)
	if !filter.Since.IsZero() {
		query = query.And("CreatedAt").Ge(filter.Since)
	}
	if filter.MinImpactScore > 0 {
		query = query.And("ImpactScore").Ge(filter.MinImpactScore)
	}
	if len(filter.ImpactTiers) > 0 {
		query = query.And("ImpactTier").In(sliceToIface(filter.ImpactTiers)...)
	}
	if filter.ExcludeDocID != "" {
		query = query.And("DocumentID").Ne(filter.ExcludeDocID)
	}

	var chunks []models.Chunk
	if err := s.db.Store().Find(&chunks, query); err != nil {
		return nil, fmt.Errorf("vector candidate query failed: %w", err)
	}

	best := make(map[string]models.VectorMatch)
	for i := range chunks {
		sim, ok := cosineSimilarity(vector, chunks[i].Vector)
		if !ok {
			continue
		}
		match, seen := best[chunks[i].DocumentID]
		if !seen || sim > match.Similarity {
			best[chunks[i].DocumentID] = models.VectorMatch{
				DocumentID: chunks[i].DocumentID,
				GroupID:    chunks[i].GroupID,
				Distance:   1 - sim,
				Similarity: sim,
				CreatedAt:  chunks[i].CreatedAt,
			}
		}
	}

	matches := make([]models.VectorMatch, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].DocumentID < matches[j].DocumentID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// DeleteDocument removes every chunk of the document.
func (s *VectorStorage) DeleteDocument(ctx context.Context, documentID string) error {
	err := s.db.Store().DeleteMatching(&models.Chunk{},
		badgerhold.Where("DocumentID").Eq(documentID))
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// ChunkCount reports stored chunks for a document.
func (s *VectorStorage) ChunkCount(ctx context.Context, documentID string) (int, error) {
	count, err := s.db.Store().Count(&models.Chunk{},
		badgerhold.Where("DocumentID").Eq(documentID))
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return int(count), nil
}

// cosineSimilarity returns the cosine of the angle between a and b. Reports
// false on dimension mismatch or a zero vector.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
