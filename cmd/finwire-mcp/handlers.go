package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/app"
	"github.com/finwire/finwire/internal/models"
)

// resolveAuth turns the FINWIRE_MCP_TOKEN environment variable into a
// caller context. An empty token yields anonymous public-read access.
func resolveAuth(ctx context.Context, application *app.App) (*models.AuthContext, error) {
	return application.AuthService.Resolve(ctx, os.Getenv("FINWIRE_MCP_TOKEN"))
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf(format, args...)),
		},
	}
}

func textResult(markdown string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(markdown),
		},
	}
}

// handleQueryDocuments implements the query_documents tool
func handleQueryDocuments(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || query == "" {
			return errorResult("Error: query parameter is required"), nil
		}

		auth, err := resolveAuth(ctx, application)
		if err != nil {
			return errorResult("Auth error: %v", err), nil
		}

		results, err := application.QueryEngine.QueryDocuments(ctx, auth, query, models.SearchOptions{
			K:               request.GetInt("k", 0),
			TimeWindowHours: request.GetInt("time_window_hours", 0),
			MinImpactScore:  request.GetInt("min_impact_score", 0),
		})
		if err != nil {
			logger.Error().Err(err).Msg("Search failed")
			return errorResult("Search error: %v", err), nil
		}

		return textResult(formatSearchResults(query, results)), nil
	}
}

// handleGetTopClientNews implements the get_top_client_news tool
func handleGetTopClientNews(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clientID, err := request.RequireString("client_id")
		if err != nil || clientID == "" {
			return errorResult("Error: client_id parameter is required"), nil
		}

		auth, err := resolveAuth(ctx, application)
		if err != nil {
			return errorResult("Auth error: %v", err), nil
		}

		articles, err := application.QueryEngine.GetTopClientNews(ctx, auth, clientID, models.FeedOptions{
			K:               request.GetInt("k", 0),
			TimeWindowHours: request.GetInt("time_window_hours", 0),
			OpportunityBias: request.GetFloat("opportunity_bias", 0),
		})
		if err != nil {
			logger.Error().Err(err).Str("client_id", clientID).Msg("Feed query failed")
			return errorResult("Feed error: %v", err), nil
		}

		return textResult(formatFeed(clientID, articles)), nil
	}
}

// handleWhyItMatters implements the why_it_matters_to_client tool
func handleWhyItMatters(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clientID, err := request.RequireString("client_id")
		if err != nil || clientID == "" {
			return errorResult("Error: client_id parameter is required"), nil
		}
		documentID, err := request.RequireString("document_id")
		if err != nil || documentID == "" {
			return errorResult("Error: document_id parameter is required"), nil
		}

		auth, err := resolveAuth(ctx, application)
		if err != nil {
			return errorResult("Auth error: %v", err), nil
		}

		explanation, err := application.QueryEngine.WhyItMatters(ctx, auth, clientID, documentID)
		if err != nil {
			logger.Error().Err(err).Str("document_id", documentID).Msg("Explanation failed")
			return errorResult("Explanation error: %v", err), nil
		}

		return textResult(formatExplanation(explanation)), nil
	}
}

// handleGetDocument implements the get_document tool
func handleGetDocument(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := request.RequireString("document_id")
		if err != nil || documentID == "" {
			return errorResult("Error: document_id parameter is required"), nil
		}

		auth, err := resolveAuth(ctx, application)
		if err != nil {
			return errorResult("Auth error: %v", err), nil
		}

		doc, err := application.DocumentService.Get(ctx, auth, documentID, nil)
		if err != nil {
			logger.Error().Err(err).Str("document_id", documentID).Msg("Get document failed")
			return errorResult("Document not found: %v", err), nil
		}

		return textResult(formatDocument(doc)), nil
	}
}

// handleResolveAlias implements the resolve_alias tool
func handleResolveAlias(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		value, err := request.RequireString("value")
		if err != nil || value == "" {
			return errorResult("Error: value parameter is required"), nil
		}

		entityKey, scheme, ok, err := application.AliasResolver.Resolve(ctx, value, request.GetString("scheme", ""))
		if err != nil {
			logger.Error().Err(err).Str("value", value).Msg("Alias resolution failed")
			return errorResult("Resolution error: %v", err), nil
		}
		if !ok {
			return errorResult("No entity matches %q", value), nil
		}

		return textResult(fmt.Sprintf("**%s** resolves to `%s` (scheme: %s)", value, entityKey, scheme)), nil
	}
}

// handleIngestDocument implements the ingest_document tool
func handleIngestDocument(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := request.RequireString("title")
		if err != nil || title == "" {
			return errorResult("Error: title parameter is required"), nil
		}
		content, err := request.RequireString("content")
		if err != nil || content == "" {
			return errorResult("Error: content parameter is required"), nil
		}
		sourceID, err := request.RequireString("source_id")
		if err != nil || sourceID == "" {
			return errorResult("Error: source_id parameter is required"), nil
		}

		auth, err := resolveAuth(ctx, application)
		if err != nil {
			return errorResult("Auth error: %v", err), nil
		}

		result, err := application.Pipeline.Ingest(ctx, auth, &models.IngestRequest{
			Title:    title,
			Content:  content,
			SourceID: sourceID,
			Language: request.GetString("language", ""),
		})
		if err != nil {
			logger.Error().Err(err).Msg("Ingest failed")
			return errorResult("Ingest error: %v", err), nil
		}

		return textResult(formatIngestResult(result)), nil
	}
}

// handleListClients implements the list_clients tool
func handleListClients(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		auth, err := resolveAuth(ctx, application)
		if err != nil {
			return errorResult("Auth error: %v", err), nil
		}

		list, err := application.ClientService.List(ctx, auth)
		if err != nil {
			logger.Error().Err(err).Msg("List clients failed")
			return errorResult("List error: %v", err), nil
		}

		return textResult(formatClients(list)), nil
	}
}
