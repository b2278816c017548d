package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createQueryDocumentsTool returns the query_documents tool definition
func createQueryDocumentsTool() mcp.Tool {
	return mcp.NewTool("query_documents",
		mcp.WithDescription("Free-text search over the financial news store (semantic, ticker, and theme matching)"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search text; uppercase tokens match tickers, lowercase tokens match themes"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum results to return (default: 10)"),
		),
		mcp.WithNumber("time_window_hours",
			mcp.Description("Only documents created within this window (default: 48)"),
		),
		mcp.WithNumber("min_impact_score",
			mcp.Description("Drop documents below this impact score (0-100)"),
		),
	)
}

// createGetTopClientNewsTool returns the get_top_client_news tool definition
func createGetTopClientNewsTool() mcp.Tool {
	return mcp.NewTool("get_top_client_news",
		mcp.WithDescription("Ranked news feed for a client, blending portfolio, watchlist, lateral graph, and semantic paths"),
		mcp.WithString("client_id",
			mcp.Required(),
			mcp.Description("Client ID (format: client_{uuid})"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum articles to return (default: 10)"),
		),
		mcp.WithNumber("opportunity_bias",
			mcp.Description("Lambda in [0,1]: 0 ranks defensively around holdings, 1 favors thematic and semantic opportunities"),
		),
		mcp.WithNumber("time_window_hours",
			mcp.Description("Only documents created within this window (default: 48)"),
		),
	)
}

// createWhyItMattersTool returns the why_it_matters_to_client tool definition
func createWhyItMattersTool() mcp.Tool {
	return mcp.NewTool("why_it_matters_to_client",
		mcp.WithDescription("One-sentence explanation of why a document matters to a client, with a story summary"),
		mcp.WithString("client_id",
			mcp.Required(),
			mcp.Description("Client ID"),
		),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document ID"),
		),
	)
}

// createGetDocumentTool returns the get_document tool definition
func createGetDocumentTool() mcp.Tool {
	return mcp.NewTool("get_document",
		mcp.WithDescription("Retrieve a single canonical document by its unique ID"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document ID (format: doc_{uuid})"),
		),
	)
}

// createResolveAliasTool returns the resolve_alias tool definition
func createResolveAliasTool() mcp.Tool {
	return mcp.NewTool("resolve_alias",
		mcp.WithDescription("Resolve a ticker, ISIN, CUSIP, or company name to its canonical entity key"),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("Identifier value, e.g. AAPL or US0378331005"),
		),
		mcp.WithString("scheme",
			mcp.Description("Optional scheme hint: ticker, isin, cusip, name"),
		),
	)
}

// createIngestDocumentTool returns the ingest_document tool definition
func createIngestDocumentTool() mcp.Tool {
	return mcp.NewTool("ingest_document",
		mcp.WithDescription("Ingest a news article: dedup, LLM extraction, embedding, and indexing (requires a write token)"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Article title"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Article body text"),
		),
		mcp.WithString("source_id",
			mcp.Required(),
			mcp.Description("Registered source ID"),
		),
		mcp.WithString("language",
			mcp.Description("ISO language code (default: en)"),
		),
	)
}

// createListClientsTool returns the list_clients tool definition
func createListClientsTool() mcp.Tool {
	return mcp.NewTool("list_clients",
		mcp.WithDescription("List client profiles visible to the configured token"),
	)
}
