package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/handlers"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/services/aliases"
	"github.com/finwire/finwire/internal/services/auth"
	"github.com/finwire/finwire/internal/services/clients"
	"github.com/finwire/finwire/internal/services/dedup"
	"github.com/finwire/finwire/internal/services/documents"
	"github.com/finwire/finwire/internal/services/embeddings"
	"github.com/finwire/finwire/internal/services/events"
	"github.com/finwire/finwire/internal/services/fetch"
	"github.com/finwire/finwire/internal/services/groups"
	"github.com/finwire/finwire/internal/services/ingest"
	"github.com/finwire/finwire/internal/services/llm"
	"github.com/finwire/finwire/internal/services/query"
	"github.com/finwire/finwire/internal/services/reconcile"
	"github.com/finwire/finwire/internal/services/sources"
	badgerstore "github.com/finwire/finwire/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// LLM stack
	Gateway    *llm.Gateway
	Extraction interfaces.ExtractionService
	Embeddings *embeddings.Service

	// Core services
	AuthService     *auth.Service
	AliasResolver   *aliases.Resolver
	Detector        interfaces.DuplicateDetector
	EventService    *events.Publisher
	Pipeline        *ingest.Pipeline
	QueryEngine     *query.Engine
	ClientService   *clients.Service
	SourceService   *sources.Service
	GroupService    *groups.Service
	DocumentService *documents.Service
	Fetcher         *fetch.Fetcher
	Reconciler      *reconcile.Reconciler

	// HTTP handlers
	ToolsHandler  *handlers.ToolsHandler
	WSHandler     *handlers.WebSocketHandler
	StatusHandler *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Bool("reconcile_enabled", cfg.Reconcile.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger plus the canonical
// document files)
func (a *App) initDatabase() error {
	storageManager, err := badgerstore.NewManager(a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.StorageManager = storageManager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Str("documents", a.Config.Storage.Documents.Dir).
		Msg("Storage layer initialized")
	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	var err error

	a.EventService = events.NewPublisher(a.Logger)

	// LLM gateway fronts Claude (extraction, rewrites) and Gemini
	// (embeddings) behind retry, rate limit, and concurrency caps.
	a.Gateway, err = llm.NewGateway(a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("llm gateway: %w", err)
	}
	a.Extraction = llm.NewExtractionService(a.Gateway, a.Logger)
	a.Embeddings = embeddings.NewService(a.Config, a.Gateway, a.Logger)
	a.Logger.Debug().Msg("LLM services initialized")

	a.AuthService, err = auth.NewService(a.Config, a.StorageManager.Tokens(), a.Logger)
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}

	a.AliasResolver, err = aliases.NewResolver(a.Config, a.StorageManager.Graph(), a.Logger)
	if err != nil {
		return fmt.Errorf("alias resolver: %w", err)
	}

	a.Detector = dedup.NewDetector(a.Config, a.StorageManager.Graph(), a.StorageManager.Vector(), a.Logger)

	a.Pipeline = ingest.NewPipeline(
		a.Config,
		a.StorageManager,
		a.Extraction,
		a.Embeddings,
		a.Detector,
		a.AliasResolver,
		a.EventService,
		a.Logger,
	)
	a.Logger.Debug().Int("workers", a.Config.Ingest.Workers).Msg("Ingest pipeline initialized")

	a.QueryEngine = query.NewEngine(a.Config, a.StorageManager, a.Gateway, a.Gateway, a.Logger)

	enricher := clients.NewEnricher(a.Gateway, a.Gateway, a.Logger)
	a.ClientService = clients.NewService(a.StorageManager, enricher, a.Logger)
	a.SourceService = sources.NewService(a.StorageManager.Sources(), a.Logger)
	a.GroupService = groups.NewService(a.StorageManager.Groups(), a.AuthService, a.Logger)
	a.DocumentService = documents.NewService(a.StorageManager, a.Logger)

	a.Fetcher, err = fetch.NewFetcher(&a.Config.Fetch, a.Logger)
	if err != nil {
		return fmt.Errorf("fetcher: %w", err)
	}

	a.Reconciler, err = reconcile.NewReconciler(&a.Config.Reconcile, a.StorageManager, a.EventService, a.Logger)
	if err != nil {
		return fmt.Errorf("reconciler: %w", err)
	}
	if a.Config.Reconcile.Enabled {
		if err := a.Reconciler.Start(); err != nil {
			return fmt.Errorf("reconciler: %w", err)
		}
		a.Logger.Debug().Str("schedule", a.Config.Reconcile.Schedule).Msg("Reconciler started")
	}

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	tokenTTL, err := time.ParseDuration(a.Config.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("invalid auth.token_ttl %q: %w", a.Config.Auth.TokenTTL, err)
	}

	a.ToolsHandler = handlers.NewToolsHandler(handlers.ToolsDeps{
		Auth:      a.AuthService,
		Pipeline:  a.Pipeline,
		Fetcher:   a.Fetcher,
		Engine:    a.QueryEngine,
		Clients:   a.ClientService,
		Sources:   a.SourceService,
		Groups:    a.GroupService,
		Documents: a.DocumentService,
		Aliases:   a.AliasResolver,
		TokenTTL:  tokenTTL,
	}, a.Logger)

	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.componentHealth, a.Logger)
	return nil
}

// componentHealth probes the LLM providers with a short budget.
func (a *App) componentHealth() map[string]string {
	components := map[string]string{"storage": "ok"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Gateway.HealthCheck(ctx); err != nil {
		components["llm"] = "unavailable: " + err.Error()
	} else {
		components["llm"] = "ok"
	}
	return components
}

// Close closes all application resources
func (a *App) Close() error {
	if a.Reconciler != nil {
		a.Reconciler.Stop()
	}

	if a.EventService != nil {
		a.EventService.Close()
	}

	if a.Gateway != nil {
		if err := a.Gateway.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM gateway")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
