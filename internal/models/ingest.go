package models

import "time"

// Pipeline stages in execution order.
type Stage string

const (
	StageValidate         Stage = "VALIDATE"
	StageHashCheck        Stage = "HASH_CHECK"
	StageExtract          Stage = "EXTRACT"
	StageFingerprintCheck Stage = "FINGERPRINT_CHECK"
	StageAliasResolve     Stage = "ALIAS_RESOLVE"
	StageEmbedSemantic    Stage = "EMBED_AND_SEMANTIC_CHECK"
	StageWriteCanonical   Stage = "WRITE_CANONICAL"
	StageWriteGraph       Stage = "WRITE_GRAPH"
	StageWriteVector      Stage = "WRITE_VECTOR"
	StageDone             Stage = "DONE"
)

// Terminal ingest statuses.
type IngestStatus string

const (
	IngestSuccess   IngestStatus = "success"
	IngestDuplicate IngestStatus = "duplicate"
	IngestFailed    IngestStatus = "failed"
)

// Duplicate handling modes.
const (
	DupModeFlag = "flag" // duplicates stored with duplicate_of set
	DupModeSkip = "skip" // duplicates rejected with no side effects
)

// Duplicate detection tiers.
const (
	DupTierHash        = "hash"
	DupTierFingerprint = "fingerprint"
	DupTierSemantic    = "semantic"
)

// IngestRequest is the validated ingest payload.
type IngestRequest struct {
	Title       string         `json:"title" validate:"required,min=1,max=500"`
	Content     string         `json:"content" validate:"required,min=1"`
	SourceID    string         `json:"source_id" validate:"required"`
	Language    string         `json:"language,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	GroupID     string         `json:"group_id,omitempty"` // must equal the token's write group when set
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DuplicateInfo records which tier matched and how strongly.
type DuplicateInfo struct {
	Tier       string  `json:"tier"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

// IngestResult is the terminal outcome of one pipeline run.
type IngestResult struct {
	Status      IngestStatus `json:"status"`
	DocumentID  string       `json:"document_id,omitempty"`
	GroupID     string       `json:"group_id,omitempty"`
	DuplicateOf string       `json:"duplicate_of,omitempty"`
	Duplicate   *DuplicateInfo `json:"duplicate,omitempty"`
	FailedStage Stage        `json:"failed_stage,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
}
