package embeddings

import (
	"strings"

	"github.com/finwire/finwire/internal/common"
)

// Chunker splits document content into overlapping character windows for
// embedding. Window boundaries prefer whitespace so chunks do not cut words;
// trailing fragments below the minimum are merged into the previous chunk.
type Chunker struct {
	size    int
	overlap int
	min     int
}

// NewChunker creates a chunker from the embedding configuration.
func NewChunker(config *common.EmbeddingConfig) *Chunker {
	size := config.ChunkSize
	if size <= 0 {
		size = 1000
	}
	overlap := config.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	min := config.MinChunk
	if min <= 0 {
		min = 100
	}
	return &Chunker{size: size, overlap: overlap, min: min}
}

// Split returns the chunk texts in document order. Content shorter than the
// minimum yields a single chunk containing everything.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var chunks []string
	prevStart := 0
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			tail := strings.TrimSpace(string(runes[start:]))
			if len([]rune(tail)) < c.min && len(chunks) > 0 {
				// Fold a short tail into the previous chunk instead of
				// embedding a fragment.
				chunks[len(chunks)-1] = strings.TrimSpace(string(runes[prevStart:]))
			} else if tail != "" {
				chunks = append(chunks, tail)
			}
			break
		}

		// Pull the boundary back to the last whitespace inside the window.
		cut := end
		for i := end; i > start+c.min; i-- {
			if isSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - c.overlap
		if next <= start {
			next = start + c.size - c.overlap
		}
		prevStart = start
		start = next
	}
	return chunks
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
