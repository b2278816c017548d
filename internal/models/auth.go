package models

import "time"

// Reserved group names. Both exist from first startup and cannot be removed.
const (
	GroupAdmin  = "admin"
	GroupPublic = "public"
)

// Group is a permission boundary. Groups are never hard-deleted; a defunct
// group keeps its records for audit and is flagged inactive.
type Group struct {
	GroupID   string    `json:"group_id" badgerhold:"key"`
	Name      string    `json:"name" badgerholdIndex:"Name"`
	Reserved  bool      `json:"reserved"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenRecord is the issuance/revocation record backing a bearer token. The
// signed JWT carries the same token_id and group list; revocation is checked
// against this record on every request.
type TokenRecord struct {
	TokenID   string    `json:"token_id" badgerhold:"key"`
	Groups    []string  `json:"groups"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// AuthContext is the resolved caller capability attached to every request.
type AuthContext struct {
	TokenID         string
	PermittedGroups []string
	WriteGroup      string // first group of the token; "" for anonymous callers
	IsAdmin         bool
	Anonymous       bool
}

// CanRead reports whether the caller may read documents in groupID.
func (a *AuthContext) CanRead(groupID string) bool {
	for _, g := range a.PermittedGroups {
		if g == groupID {
			return true
		}
	}
	return false
}

// CanWrite reports whether the caller may write into groupID. Writes are
// restricted to the token's primary group.
func (a *AuthContext) CanWrite(groupID string) bool {
	return a.WriteGroup != "" && a.WriteGroup == groupID
}

// AnonymousContext is the capability of a caller with no bearer token:
// public reads only.
func AnonymousContext() *AuthContext {
	return &AuthContext{
		PermittedGroups: []string{GroupPublic},
		Anonymous:       true,
	}
}
