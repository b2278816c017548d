package models

import (
	"sort"
	"strings"
	"time"
)

// Impact tiers, highest first. A document's tier is always consistent with
// its score bucket via TierForScore.
const (
	TierPlatinum = "PLATINUM"
	TierGold     = "GOLD"
	TierSilver   = "SILVER"
	TierBronze   = "BRONZE"
	TierStandard = "STANDARD"
)

// MaxDocumentWords bounds document content at validation time.
const MaxDocumentWords = 20000

// MaxMetadataKeys bounds the free-form metadata bag on ingest requests.
const MaxMetadataKeys = 32

// Document is the immutable unit of news. One JSON file per version in the
// canonical store; projected into the graph and vector indexes. On conflict
// the canonical file is truth and the indexes are rebuilt from it.
type Document struct {
	DocumentID        string         `json:"document_id"`
	Version           int            `json:"version"`
	PreviousVersionID string         `json:"previous_version_id,omitempty"`
	SourceID          string         `json:"source_id"`
	GroupID           string         `json:"group_id"`
	CreatedAt         time.Time      `json:"created_at"`
	PublishedAt       *time.Time     `json:"published_at,omitempty"`
	Language          string         `json:"language"`
	Title             string         `json:"title"`
	Content           string         `json:"content"`
	WordCount         int            `json:"word_count"`
	ContentHash       string         `json:"content_hash"`
	StoryFingerprint  string         `json:"story_fingerprint"`
	DuplicateOf       string         `json:"duplicate_of,omitempty"`
	DuplicateScore    *float64       `json:"duplicate_score,omitempty"`
	ImpactScore       int            `json:"impact_score"`
	ImpactTier        string         `json:"impact_tier"`
	Extracted         Extracted      `json:"extracted"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Extracted is the enrichment block persisted with every document version.
type Extracted struct {
	Events      []ExtractedEvent      `json:"events"`
	Instruments []ExtractedInstrument `json:"instruments"`
	Companies   []string              `json:"companies"`
	Regions     []string              `json:"regions"`
	Sectors     []string              `json:"sectors"`
	Themes      []string              `json:"themes"`
	Summary     string                `json:"summary,omitempty"`
}

// ExtractedEvent is one typed market event detected in a document.
type ExtractedEvent struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// ExtractedInstrument is one affected instrument with direction and
// magnitude. RegexDetected marks entries added by the ticker fallback scan
// rather than the model.
type ExtractedInstrument struct {
	Ticker        string  `json:"ticker"`
	Direction     string  `json:"direction"` // positive, negative, neutral
	Magnitude     float64 `json:"magnitude"` // 0-1
	Confidence    float64 `json:"confidence"`
	RegexDetected bool    `json:"regex_detected,omitempty"`
}

// AffectedTickers returns the sorted, de-duplicated ticker set - the
// structural identity of the story used by the fingerprint.
func (e *Extracted) AffectedTickers() []string {
	seen := make(map[string]bool, len(e.Instruments))
	var tickers []string
	for _, in := range e.Instruments {
		t := strings.ToUpper(strings.TrimSpace(in.Ticker))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// PrimaryEventType returns the highest-confidence event type, or "".
func (e *Extracted) PrimaryEventType() string {
	best := ""
	bestConf := -1.0
	for _, ev := range e.Events {
		if ev.Confidence > bestConf {
			best = ev.Type
			bestConf = ev.Confidence
		}
	}
	return best
}

// TierForScore buckets an impact score into its tier. Single source of
// truth for the score/tier consistency invariant.
func TierForScore(score int) string {
	switch {
	case score >= 90:
		return TierPlatinum
	case score >= 75:
		return TierGold
	case score >= 50:
		return TierSilver
	case score >= 25:
		return TierBronze
	default:
		return TierStandard
	}
}

// CountWords counts whitespace-delimited words in content.
func CountWords(content string) int {
	return len(strings.Fields(content))
}
