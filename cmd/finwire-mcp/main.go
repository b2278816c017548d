package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/finwire/finwire/internal/app"
	"github.com/finwire/finwire/internal/common"
)

func main() {
	configPath := os.Getenv("FINWIRE_CONFIG")
	if configPath == "" {
		configPath = "finwire.toml"
	}

	config, err := common.LoadFromFiles(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal console logging to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	mcpServer := server.NewMCPServer(
		"finwire",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// The bearer token comes from the environment; empty means anonymous
	// public-read access.
	mcpServer.AddTool(createQueryDocumentsTool(), handleQueryDocuments(application, logger))
	mcpServer.AddTool(createGetTopClientNewsTool(), handleGetTopClientNews(application, logger))
	mcpServer.AddTool(createWhyItMattersTool(), handleWhyItMatters(application, logger))
	mcpServer.AddTool(createGetDocumentTool(), handleGetDocument(application, logger))
	mcpServer.AddTool(createResolveAliasTool(), handleResolveAlias(application, logger))
	mcpServer.AddTool(createIngestDocumentTool(), handleIngestDocument(application, logger))
	mcpServer.AddTool(createListClientsTool(), handleListClients(application, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
