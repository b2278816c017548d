package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/models"
)

type memTokenStorage struct {
	tokens map[string]*models.TokenRecord
}

func newMemTokenStorage() *memTokenStorage {
	return &memTokenStorage{tokens: make(map[string]*models.TokenRecord)}
}

func (m *memTokenStorage) SaveToken(ctx context.Context, token *models.TokenRecord) error {
	copied := *token
	m.tokens[token.TokenID] = &copied
	return nil
}

func (m *memTokenStorage) GetToken(ctx context.Context, tokenID string) (*models.TokenRecord, error) {
	token, ok := m.tokens[tokenID]
	if !ok {
		return nil, models.NewServiceError(models.ErrNotFound, "token not found")
	}
	copied := *token
	return &copied, nil
}

func (m *memTokenStorage) RevokeToken(ctx context.Context, tokenID string) error {
	token, ok := m.tokens[tokenID]
	if !ok {
		return models.NewServiceError(models.ErrNotFound, "token not found")
	}
	token.Revoked = true
	return nil
}

func newTestService(t *testing.T) (*Service, *memTokenStorage) {
	t.Helper()
	config := common.DefaultConfig()
	config.Auth.JWTSecret = "test-secret"
	store := newMemTokenStorage()
	svc, err := NewService(config, store, arbor.NewLogger())
	require.NoError(t, err)
	return svc, store
}

func TestResolve_EmptyBearerIsAnonymousPublic(t *testing.T) {
	svc, _ := newTestService(t)

	// The token-less branch warns and downgrades; it must never error or
	// grant anything beyond public reads.
	auth, err := svc.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, auth.Anonymous)
	assert.Empty(t, auth.TokenID)
	assert.Equal(t, []string{models.GroupPublic}, auth.PermittedGroups)
	assert.False(t, auth.CanWrite(models.GroupPublic))
	assert.False(t, auth.IsAdmin)
}

func TestIssueAndResolve(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	signed, record, err := svc.Issue(ctx, []string{"fund-alpha", "research"}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	auth, err := svc.Resolve(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, record.TokenID, auth.TokenID)
	assert.Equal(t, "fund-alpha", auth.WriteGroup)
	assert.True(t, auth.CanRead("research"))
	assert.True(t, auth.CanRead(models.GroupPublic), "public is always readable")
	assert.False(t, auth.IsAdmin)
	assert.False(t, auth.CanWrite("research"), "writes restricted to primary group")
}

func TestResolve_AdminGroup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	signed, _, err := svc.Issue(ctx, []string{models.GroupAdmin}, time.Hour)
	require.NoError(t, err)

	auth, err := svc.Resolve(ctx, signed)
	require.NoError(t, err)
	assert.True(t, auth.IsAdmin)
}

func TestResolve_RevokedToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	signed, record, err := svc.Issue(ctx, []string{"fund-alpha"}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, record.TokenID))

	_, err = svc.Resolve(ctx, signed)
	require.Error(t, err)
	assert.Equal(t, models.ErrAuthInvalidToken, models.CodeOf(err))
}

func TestResolve_ExpiredToken(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	signed, record, err := svc.Issue(ctx, []string{"fund-alpha"}, time.Hour)
	require.NoError(t, err)

	// Expire the record directly; the JWT exp claim alone is not trusted.
	store.tokens[record.TokenID].ExpiresAt = time.Now().Add(-time.Minute)

	_, err = svc.Resolve(ctx, signed)
	require.Error(t, err)
	assert.Equal(t, models.ErrAuthInvalidToken, models.CodeOf(err))
}

func TestResolve_GarbageToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Resolve(context.Background(), "not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, models.ErrAuthInvalidToken, models.CodeOf(err))
}

func TestIssue_RequiresGroups(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.Issue(context.Background(), nil, time.Hour)
	require.Error(t, err)
	assert.Equal(t, models.ErrInvalidInput, models.CodeOf(err))
}
