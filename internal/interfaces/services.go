package interfaces

import (
	"context"
	"time"

	"github.com/finwire/finwire/internal/models"
)

// AuthService resolves bearer tokens into caller capabilities.
type AuthService interface {
	// Resolve parses and validates a bearer token. An empty token yields
	// the anonymous public-read context; invalid tokens fail with
	// AUTH_INVALID_TOKEN.
	Resolve(ctx context.Context, bearer string) (*models.AuthContext, error)

	// Issue mints a token for the group set (admin only at the API
	// boundary). The first group becomes the write group.
	Issue(ctx context.Context, groups []string, ttl time.Duration) (signed string, record *models.TokenRecord, err error)

	// Revoke marks a token record revoked.
	Revoke(ctx context.Context, tokenID string) error
}

// AliasResolver maps surface identifiers to canonical entity keys.
type AliasResolver interface {
	// Resolve looks up value, optionally constrained to a hint scheme.
	// Returns the canonical entity key and the scheme that matched.
	Resolve(ctx context.Context, value, scheme string) (entityKey, matchedScheme string, ok bool, err error)

	// Register binds (scheme, value) to an entity and invalidates the
	// cache entry.
	Register(ctx context.Context, scheme, value, entityKey string) error
}

// DuplicateDetector is the three-tier duplicate check.
type DuplicateDetector interface {
	// CheckHash looks up the normalized content hash in the graph index.
	CheckHash(ctx context.Context, groupID, contentHash string) (*models.DuplicateInfo, error)

	// CheckFingerprint looks up the structural story fingerprint.
	CheckFingerprint(ctx context.Context, groupID, fingerprint string) (*models.DuplicateInfo, error)

	// CheckSemantic searches the vector index with the precomputed query
	// vector, restricted to the group and the semantic window.
	CheckSemantic(ctx context.Context, groupID string, queryVector []float32, excludeDocID string) (*models.DuplicateInfo, error)
}

// EventPublisher broadcasts pipeline and system events to subscribers
// (websocket clients, tests).
type EventPublisher interface {
	Publish(event Event)
	Subscribe() (<-chan Event, func())
}

// Event is one broadcastable system event.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
