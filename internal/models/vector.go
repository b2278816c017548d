package models

import "time"

// Chunk is one embedded slice of a document held by the vector index.
// Metadata fields are written with every chunk so group and impact filters
// run inside the store query.
type Chunk struct {
	ChunkID     string    `json:"chunk_id" badgerhold:"key"` // <document_id>:<ordinal>
	DocumentID  string    `json:"document_id" badgerholdIndex:"DocumentID"`
	GroupID     string    `json:"group_id" badgerholdIndex:"GroupID"`
	SourceID    string    `json:"source_id"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
	ImpactScore int       `json:"impact_score"`
	ImpactTier  string    `json:"impact_tier"`
	Ordinal     int       `json:"ordinal"`
	Text        string    `json:"text"`
	Vector      []float32 `json:"vector"`
}

// VectorFilter restricts a k-NN search. Groups is mandatory: every vector
// query carries the caller's permitted group set as a store predicate.
type VectorFilter struct {
	Groups         []string
	Since          time.Time
	MinImpactScore int
	ImpactTiers    []string
	ExcludeDocID   string
}

// VectorMatch is one k-NN result, best chunk per document.
type VectorMatch struct {
	DocumentID string
	GroupID    string
	Distance   float64 // cosine distance, 0 = identical
	Similarity float64 // 1 - Distance
	CreatedAt  time.Time
}
