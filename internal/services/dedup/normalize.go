package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/finwire/finwire/internal/models"
)

// NormalizeContent canonicalizes article text for exact-duplicate hashing:
// lower-cased, punctuation stripped, whitespace collapsed. Two feeds
// carrying the same wire story with different casing or spacing hash
// identically.
func NormalizeContent(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	lastSpace := true
	for _, r := range strings.ToLower(content) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// ContentHash returns the hex SHA-256 of the normalized content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}

// StoryFingerprint hashes the structural identity of a story: the sorted
// affected ticker set, the primary event type, and the UTC publication date.
// Two rewrites of the same underlying event collide here even when their
// prose differs entirely, while the date term keeps recurring stories
// (weekly guidance updates on the same ticker) from matching across days.
// Returns "" when the document has no affected tickers; a story with no
// instruments has no structural identity worth matching on.
func StoryFingerprint(extracted *models.Extracted, published time.Time) string {
	tickers := extracted.AffectedTickers()
	if len(tickers) == 0 {
		return ""
	}
	identity := strings.Join(tickers, ",") + "|" + extracted.PrimaryEventType() +
		"|" + published.UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}
