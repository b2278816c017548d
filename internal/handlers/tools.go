package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
	"github.com/finwire/finwire/internal/services/clients"
	"github.com/finwire/finwire/internal/services/documents"
	"github.com/finwire/finwire/internal/services/fetch"
	"github.com/finwire/finwire/internal/services/groups"
	"github.com/finwire/finwire/internal/services/ingest"
	"github.com/finwire/finwire/internal/services/query"
	"github.com/finwire/finwire/internal/services/sources"
)

// ToolsHandler serves the POST /tools/{name} surface. Every tool shares
// the same envelope; auth rides the Authorization header or an
// auth_tokens body field.
type ToolsHandler struct {
	auth      interfaces.AuthService
	pipeline  *ingest.Pipeline
	fetcher   *fetch.Fetcher
	engine    *query.Engine
	clients   *clients.Service
	sources   *sources.Service
	groups    *groups.Service
	documents *documents.Service
	aliases   interfaces.AliasResolver
	tokenTTL  time.Duration
	logger    arbor.ILogger
}

// ToolsDeps wires the tool surface.
type ToolsDeps struct {
	Auth      interfaces.AuthService
	Pipeline  *ingest.Pipeline
	Fetcher   *fetch.Fetcher
	Engine    *query.Engine
	Clients   *clients.Service
	Sources   *sources.Service
	Groups    *groups.Service
	Documents *documents.Service
	Aliases   interfaces.AliasResolver
	TokenTTL  time.Duration
}

// NewToolsHandler creates the tool dispatch handler.
func NewToolsHandler(deps ToolsDeps, logger arbor.ILogger) *ToolsHandler {
	return &ToolsHandler{
		auth:      deps.Auth,
		pipeline:  deps.Pipeline,
		fetcher:   deps.Fetcher,
		engine:    deps.Engine,
		clients:   deps.Clients,
		sources:   deps.Sources,
		groups:    deps.Groups,
		documents: deps.Documents,
		aliases:   deps.Aliases,
		tokenTTL:  deps.TokenTTL,
		logger:    logger,
	}
}

// ServeHTTP dispatches POST /tools/{name}.
func (h *ToolsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/tools/")
	if name == "" || strings.Contains(name, "/") {
		WriteServiceError(w, models.NewServiceError(models.ErrNotFound, "unknown tool"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		WriteServiceError(w, models.WrapServiceError(models.ErrInvalidInput, "cannot read request body", err))
		return
	}

	auth, err := h.auth.Resolve(r.Context(), bearerToken(r, payload))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	data, message, err := h.dispatch(r.Context(), auth, name, payload)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("tool", name).
			Str("token_id", auth.TokenID).
			Msg("Tool call failed")
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, data, message)
}

// bearerToken pulls the JWT from the Authorization header, falling back to
// the auth_tokens body field.
func bearerToken(r *http.Request, payload []byte) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	var probe struct {
		AuthTokens []string `json:"auth_tokens"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil && len(probe.AuthTokens) > 0 {
		return probe.AuthTokens[0]
	}
	return ""
}

func unmarshalTool[T any](payload []byte) (*T, error) {
	var req T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, models.WrapServiceError(models.ErrInvalidInput, "request body is not valid JSON", err)
		}
	}
	return &req, nil
}

func (h *ToolsHandler) dispatch(ctx context.Context, auth *models.AuthContext, name string, payload []byte) (any, string, error) {
	switch name {
	case "ingest_document":
		return h.ingestDocument(ctx, auth, payload)
	case "ingest_url":
		return h.ingestURL(ctx, auth, payload)
	case "query_documents":
		return h.queryDocuments(ctx, auth, payload)
	case "get_top_client_news":
		return h.getTopClientNews(ctx, auth, payload)
	case "why_it_matters_to_client":
		return h.whyItMatters(ctx, auth, payload)
	case "get_document":
		return h.getDocument(ctx, auth, payload)
	case "resolve_alias":
		return h.resolveAlias(ctx, auth, payload)
	case "create_client":
		return h.createClient(ctx, auth, payload)
	case "update_client":
		return h.updateClient(ctx, auth, payload)
	case "get_client":
		return h.getClient(ctx, auth, payload)
	case "list_clients":
		return h.listClients(ctx, auth)
	case "delete_client":
		return h.deleteClient(ctx, auth, payload)
	case "set_portfolio":
		return h.setPortfolio(ctx, auth, payload)
	case "set_watchlist":
		return h.setWatchlist(ctx, auth, payload)
	case "enrich_client":
		return h.enrichClient(ctx, auth, payload)
	case "get_client_completeness":
		return h.clientCompleteness(ctx, auth, payload)
	case "create_source":
		return h.createSource(ctx, auth, payload)
	case "update_source":
		return h.updateSource(ctx, auth, payload)
	case "delete_source":
		return h.deleteSource(ctx, auth, payload)
	case "get_source":
		return h.getSource(ctx, payload)
	case "list_sources":
		return h.listSources(ctx)
	case "delete_document":
		return h.deleteDocument(ctx, auth, payload)
	case "create_group":
		return h.createGroup(ctx, auth, payload)
	case "list_groups":
		return h.listGroups(ctx, auth)
	case "set_group_active":
		return h.setGroupActive(ctx, auth, payload)
	case "issue_token":
		return h.issueToken(ctx, auth, payload)
	case "revoke_token":
		return h.revokeToken(ctx, auth, payload)
	default:
		return nil, "", models.NewServiceError(models.ErrNotFound, "unknown tool "+name)
	}
}

func (h *ToolsHandler) ingestDocument(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[models.IngestRequest](payload)
	if err != nil {
		return nil, "", err
	}
	result, err := h.pipeline.Ingest(ctx, auth, req)
	if err != nil {
		return nil, "", err
	}
	return result, "Document " + string(result.Status), nil
}

func (h *ToolsHandler) ingestURL(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		URL      string         `json:"url"`
		SourceID string         `json:"source_id"`
		GroupID  string         `json:"group_id,omitempty"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	article, err := h.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return nil, "", err
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["url"] = article.URL

	result, err := h.pipeline.Ingest(ctx, auth, &models.IngestRequest{
		Title:       article.Title,
		Content:     article.Content,
		SourceID:    req.SourceID,
		Language:    article.Language,
		PublishedAt: article.PublishedAt,
		GroupID:     req.GroupID,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, "", err
	}
	return result, "Document " + string(result.Status), nil
}

func (h *ToolsHandler) queryDocuments(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		Query string `json:"query"`
		models.SearchOptions
	}](payload)
	if err != nil {
		return nil, "", err
	}
	results, err := h.engine.QueryDocuments(ctx, auth, req.Query, req.SearchOptions)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{"documents": results}, fmt.Sprintf("%d documents", len(results)), nil
}

func (h *ToolsHandler) getTopClientNews(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		ClientID string `json:"client_id"`
		models.FeedOptions
	}](payload)
	if err != nil {
		return nil, "", err
	}
	articles, err := h.engine.GetTopClientNews(ctx, auth, req.ClientID, req.FeedOptions)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{"articles": articles}, fmt.Sprintf("%d articles", len(articles)), nil
}

func (h *ToolsHandler) whyItMatters(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		ClientID   string `json:"client_id"`
		DocumentID string `json:"document_id"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	explanation, err := h.engine.WhyItMatters(ctx, auth, req.ClientID, req.DocumentID)
	if err != nil {
		return nil, "", err
	}
	return explanation, "", nil
}

func (h *ToolsHandler) getDocument(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		DocumentID string     `json:"document_id"`
		DateHint   *time.Time `json:"date_hint,omitempty"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	doc, err := h.documents.Get(ctx, auth, req.DocumentID, req.DateHint)
	if err != nil {
		return nil, "", err
	}
	return doc, "", nil
}

func (h *ToolsHandler) resolveAlias(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		Value  string `json:"value"`
		Scheme string `json:"scheme,omitempty"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	entityKey, scheme, ok, err := h.aliases.Resolve(ctx, req.Value, req.Scheme)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", models.NewServiceError(models.ErrNotFound, "no entity matches "+req.Value)
	}
	return map[string]string{"entity_key": entityKey, "scheme": scheme}, "", nil
}

func (h *ToolsHandler) createClient(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[clients.CreateRequest](payload)
	if err != nil {
		return nil, "", err
	}
	client, err := h.clients.Create(ctx, auth, req)
	if err != nil {
		return nil, "", err
	}
	return client, "Client created", nil
}

func (h *ToolsHandler) updateClient(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		ClientID string `json:"client_id"`
		clients.UpdateRequest
	}](payload)
	if err != nil {
		return nil, "", err
	}
	client, err := h.clients.Update(ctx, auth, req.ClientID, &req.UpdateRequest)
	if err != nil {
		return nil, "", err
	}
	return client, "Client updated", nil
}

func (h *ToolsHandler) getClient(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		ClientID string `json:"client_id"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	client, err := h.clients.Get(ctx, auth, req.ClientID)
	if err != nil {
		return nil, "", err
	}
	return client, "", nil
}

func (h *ToolsHandler) listClients(ctx context.Context, auth *models.AuthContext) (any, string, error) {
	list, err := h.clients.List(ctx, auth)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{"clients": list}, fmt.Sprintf("%d clients", len(list)), nil
}

func (h *ToolsHandler) deleteClient(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		ClientID string `json:"client_id"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	if err := h.clients.Delete(ctx, auth, req.ClientID); err != nil {
		return nil, "", err
	}
	return nil, "Client deleted", nil
}

func (h *ToolsHandler) setPortfolio(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		ClientID  string           `json:"client_id"`
		Portfolio models.Portfolio `json:"portfolio"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	client, err := h.clients.SetPortfolio(ctx, auth, req.ClientID, &req.Portfolio)
	if err != nil {
		return nil, "", err
	}
	return client, "Portfolio updated", nil
}

func (h *ToolsHandler) setWatchlist(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		ClientID  string           `json:"client_id"`
		Watchlist models.Watchlist `json:"watchlist"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	client, err := h.clients.SetWatchlist(ctx, auth, req.ClientID, &req.Watchlist)
	if err != nil {
		return nil, "", err
	}
	return client, "Watchlist updated", nil
}

func (h *ToolsHandler) enrichClient(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		ClientID string `json:"client_id"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	client, err := h.clients.Enrich(ctx, auth, req.ClientID)
	if err != nil {
		return nil, "", err
	}
	return client, "Mandate enriched", nil
}

func (h *ToolsHandler) clientCompleteness(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		ClientID string `json:"client_id"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	report, err := h.clients.Completeness(ctx, auth, req.ClientID)
	if err != nil {
		return nil, "", err
	}
	return report, "", nil
}

func (h *ToolsHandler) createSource(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[sources.CreateRequest](payload)
	if err != nil {
		return nil, "", err
	}
	source, err := h.sources.Create(ctx, auth, req)
	if err != nil {
		return nil, "", err
	}
	return source, "Source created", nil
}

func (h *ToolsHandler) updateSource(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		SourceID string `json:"source_id"`
		sources.UpdateRequest
	}](payload)
	if err != nil {
		return nil, "", err
	}
	source, err := h.sources.Update(ctx, auth, req.SourceID, &req.UpdateRequest)
	if err != nil {
		return nil, "", err
	}
	return source, "Source updated", nil
}

func (h *ToolsHandler) deleteSource(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		SourceID string `json:"source_id"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	if err := h.sources.Delete(ctx, auth, req.SourceID); err != nil {
		return nil, "", err
	}
	return nil, "Source deleted", nil
}

func (h *ToolsHandler) getSource(ctx context.Context, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		SourceID string `json:"source_id"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	source, err := h.sources.Get(ctx, req.SourceID)
	if err != nil {
		return nil, "", err
	}
	return source, "", nil
}

func (h *ToolsHandler) listSources(ctx context.Context) (any, string, error) {
	list, err := h.sources.List(ctx)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{"sources": list}, fmt.Sprintf("%d sources", len(list)), nil
}

func (h *ToolsHandler) deleteDocument(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		DocumentID string `json:"document_id"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	if err := h.documents.Delete(ctx, auth, req.DocumentID); err != nil {
		return nil, "", err
	}
	return nil, "Document deleted", nil
}

func (h *ToolsHandler) createGroup(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		Name string `json:"name"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	group, err := h.groups.Create(ctx, auth, req.Name)
	if err != nil {
		return nil, "", err
	}
	return group, "Group created", nil
}

func (h *ToolsHandler) listGroups(ctx context.Context, auth *models.AuthContext) (any, string, error) {
	list, err := h.groups.List(ctx, auth)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{"groups": list}, fmt.Sprintf("%d groups", len(list)), nil
}

func (h *ToolsHandler) setGroupActive(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		GroupID string `json:"group_id"`
		Active  bool   `json:"active"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	group, err := h.groups.SetActive(ctx, auth, req.GroupID, req.Active)
	if err != nil {
		return nil, "", err
	}
	return group, "Group updated", nil
}

func (h *ToolsHandler) issueToken(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		Groups []string `json:"groups"`
		TTL    string   `json:"ttl,omitempty"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	ttl := h.tokenTTL
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil {
			return nil, "", models.WrapServiceError(models.ErrInvalidInput, "invalid ttl duration", err)
		}
		ttl = parsed
	}
	signed, record, err := h.groups.IssueToken(ctx, auth, req.Groups, ttl)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{
		"token":      signed,
		"token_id":   record.TokenID,
		"groups":     record.Groups,
		"expires_at": record.ExpiresAt,
	}, "Token issued", nil
}

func (h *ToolsHandler) revokeToken(ctx context.Context, auth *models.AuthContext, payload []byte) (any, string, error) {
	req, err := unmarshalTool[struct {
		TokenID string `json:"token_id"`
	}](payload)
	if err != nil {
		return nil, "", err
	}
	if err := h.groups.RevokeToken(ctx, auth, req.TokenID); err != nil {
		return nil, "", err
	}
	return nil, "Token revoked", nil
}
