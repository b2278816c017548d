package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/models"
	"github.com/finwire/finwire/internal/services/sources"
)

// fakeAuthService records the bearer it was asked to resolve and returns a
// canned context.
type fakeAuthService struct {
	resolved string
	ctx      *models.AuthContext
	err      error
}

func (f *fakeAuthService) Resolve(ctx context.Context, bearer string) (*models.AuthContext, error) {
	f.resolved = bearer
	if f.err != nil {
		return nil, f.err
	}
	if f.ctx != nil {
		return f.ctx, nil
	}
	return &models.AuthContext{Anonymous: true, PermittedGroups: []string{"public"}}, nil
}

func (f *fakeAuthService) Issue(ctx context.Context, groups []string, ttl time.Duration) (string, *models.TokenRecord, error) {
	return "", nil, models.NewServiceError(models.ErrAdminRequired, "not implemented")
}

func (f *fakeAuthService) Revoke(ctx context.Context, tokenID string) error {
	return nil
}

type memSourceStorage struct {
	sources map[string]*models.Source
}

func newMemSourceStorage() *memSourceStorage {
	return &memSourceStorage{sources: map[string]*models.Source{}}
}

func (m *memSourceStorage) SaveSource(ctx context.Context, source *models.Source) error {
	m.sources[source.SourceID] = source
	return nil
}

func (m *memSourceStorage) GetSource(ctx context.Context, sourceID string) (*models.Source, error) {
	source, ok := m.sources[sourceID]
	if !ok {
		return nil, models.NewServiceError(models.ErrSourceNotFound, "no such source")
	}
	return source, nil
}

func (m *memSourceStorage) ListSources(ctx context.Context) ([]*models.Source, error) {
	out := make([]*models.Source, 0, len(m.sources))
	for _, source := range m.sources {
		out = append(out, source)
	}
	return out, nil
}

func (m *memSourceStorage) DeleteSource(ctx context.Context, sourceID string) error {
	delete(m.sources, sourceID)
	return nil
}

func newTestHandler(auth *fakeAuthService) *ToolsHandler {
	logger := arbor.NewLogger()
	return NewToolsHandler(ToolsDeps{
		Auth:     auth,
		Sources:  sources.NewService(newMemSourceStorage(), logger),
		TokenTTL: time.Hour,
	}, logger)
}

func postTool(t *testing.T, handler *ToolsHandler, name string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(http.MethodPost, "/tools/"+name, &body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestToolsHandler_UnknownTool(t *testing.T) {
	handler := newTestHandler(&fakeAuthService{})

	rec := postTool(t, handler, "summon_demon", nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "error", envelope["status"])
	assert.Equal(t, "NOT_FOUND", envelope["error_code"])
}

func TestToolsHandler_MethodNotAllowed(t *testing.T) {
	handler := newTestHandler(&fakeAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/tools/list_sources", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestToolsHandler_MalformedJSON(t *testing.T) {
	handler := newTestHandler(&fakeAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/tools/create_source", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "INVALID_INPUT", envelope["error_code"])
}

func TestToolsHandler_BearerFromHeader(t *testing.T) {
	auth := &fakeAuthService{}
	handler := newTestHandler(auth)

	postTool(t, handler, "list_sources", nil, map[string]string{
		"Authorization": "Bearer header-token",
	})

	assert.Equal(t, "header-token", auth.resolved)
}

func TestToolsHandler_BearerFromBody(t *testing.T) {
	auth := &fakeAuthService{}
	handler := newTestHandler(auth)

	postTool(t, handler, "list_sources", map[string]any{
		"auth_tokens": []string{"body-token"},
	}, nil)

	assert.Equal(t, "body-token", auth.resolved)
}

func TestToolsHandler_InvalidTokenRejected(t *testing.T) {
	auth := &fakeAuthService{err: models.NewServiceError(models.ErrAuthInvalidToken, "token expired")}
	handler := newTestHandler(auth)

	rec := postTool(t, handler, "list_sources", nil, map[string]string{
		"Authorization": "Bearer stale",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "AUTH_INVALID_TOKEN", envelope["error_code"])
	assert.NotEmpty(t, envelope["recovery_strategy"])
}

func TestToolsHandler_CreateSourceRequiresAdmin(t *testing.T) {
	auth := &fakeAuthService{ctx: &models.AuthContext{
		TokenID:         "tok_reader",
		PermittedGroups: []string{"fund-alpha", "public"},
	}}
	handler := newTestHandler(auth)

	rec := postTool(t, handler, "create_source", map[string]any{
		"name": "Reuters",
		"type": "newswire",
	}, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "ADMIN_REQUIRED", envelope["error_code"])
}

func TestToolsHandler_CreateAndListSources(t *testing.T) {
	auth := &fakeAuthService{ctx: &models.AuthContext{
		TokenID:         "tok_admin",
		PermittedGroups: []string{"admin", "public"},
		IsAdmin:         true,
	}}
	handler := newTestHandler(auth)

	rec := postTool(t, handler, "create_source", map[string]any{
		"name": "Reuters",
		"type": "newswire",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "success", envelope["status"])
	data, ok := envelope["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Reuters", data["name"])
	assert.NotEmpty(t, data["source_id"])

	rec = postTool(t, handler, "list_sources", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	envelope = decodeEnvelope(t, rec)
	listData, ok := envelope["data"].(map[string]any)
	require.True(t, ok)
	sourceList, ok := listData["sources"].([]any)
	require.True(t, ok)
	assert.Len(t, sourceList, 1)
	assert.Equal(t, "1 sources", envelope["message"])
}
