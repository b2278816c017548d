package models

import "time"

// Source trust levels.
const (
	TrustVerified   = "verified"
	TrustTrusted    = "trusted"
	TrustStandard   = "standard"
	TrustUnverified = "unverified"
)

// Source is a global attribution record. Sources carry no group; any
// authenticated caller may reference any source, only admins may manage
// them.
type Source struct {
	SourceID   string    `json:"source_id" badgerhold:"key"`
	Name       string    `json:"name" badgerholdIndex:"Name"`
	Type       string    `json:"type"` // newswire, exchange_feed, regulator, blog, ...
	Region     string    `json:"region,omitempty"`
	Languages  []string  `json:"languages,omitempty"`
	TrustLevel string    `json:"trust_level"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ValidTrustLevel reports whether level is a recognized trust level.
func ValidTrustLevel(level string) bool {
	switch level {
	case TrustVerified, TrustTrusted, TrustStandard, TrustUnverified:
		return true
	}
	return false
}
