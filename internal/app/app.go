// Package app wires storage, services, and handlers into a running
// application.
package app

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/handlers"
	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/services/events"
	"github.com/ternarybob/rogo/internal/services/export"
	"github.com/ternarybob/rogo/internal/services/fetcher"
	"github.com/ternarybob/rogo/internal/services/llm"
	"github.com/ternarybob/rogo/internal/services/qa"
	"github.com/ternarybob/rogo/internal/services/scheduler"
	"github.com/ternarybob/rogo/internal/services/session"
	"github.com/ternarybob/rogo/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService

	// Provider clients (one per provider/credential pair)
	Factory *llm.Factory

	// Page retrieval with cache-through storage
	FetcherService *fetcher.Service

	// Chat sessions and question answering
	SessionManager *session.Manager
	QAService      *qa.Service

	// Transcript and preview rendering
	ExportService interfaces.ExportService

	// Log streaming to WebSocket clients
	LogStreamer *handlers.LogStreamer

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	SessionHandler *handlers.SessionHandler
	PageHandler    *handlers.PageHandler
	KVHandler      *handlers.KVHandler
	WSHandler      *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Stream logs to WebSocket clients through arbor's context channel.
	// The streamer must exist before SetChannel so no batches are dropped.
	app.LogStreamer = handlers.NewLogStreamer(app.WSHandler, &cfg.WebSocket, logger)
	logger.SetChannel("context", app.LogStreamer.Channel())
	app.LogStreamer.Start()
	logger.Debug().Msg("WebSocket log streamer started")

	// Register and start maintenance jobs
	if err := app.initScheduler(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Log initialization summary
	logger.Info().
		Str("default_provider", cfg.Providers.Default).
		Str("storage_path", cfg.Storage.Badger.Path).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	// Event service first; the QA pipeline and WebSocket broadcaster
	// communicate through it
	a.EventService = events.NewService(a.Logger)
	a.Logger.Debug().Msg("Event service initialized")

	// Provider factory resolves credentials from the session selection,
	// then environment, stored keys, and config
	a.Factory = llm.NewFactory(a.Config, a.StorageManager.KVStorage(), a.Logger)
	a.Logger.Debug().
		Str("default_provider", a.Config.Providers.Default).
		Msg("Provider factory initialized")

	// Page fetcher backed by the page cache
	a.FetcherService = fetcher.NewService(a.Config, a.StorageManager.PageStorage(), a.StorageManager.KVStorage(), a.Logger)
	a.Logger.Debug().
		Str("render_mode", a.Config.Fetcher.RenderMode).
		Msg("Fetcher service initialized")

	// Session registry
	a.SessionManager = session.NewManager(a.Config, a.Logger)
	a.Logger.Debug().Msg("Session manager initialized")

	// Question answering pipeline
	a.QAService = qa.NewService(a.Factory, a.EventService, a.Config, a.Logger)
	a.Logger.Debug().Msg("QA service initialized")

	// Transcript and preview rendering
	a.ExportService = export.NewService(a.Logger)
	a.Logger.Debug().Msg("Export service initialized")

	// Scheduler; maintenance jobs are registered once handlers are up
	a.SchedulerService = scheduler.NewService(a.Logger)
	a.Logger.Debug().Msg("Scheduler service initialized")

	return nil
}

// initHandlers initializes the HTTP and WebSocket handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler(a.SessionManager, a.Factory, a.Logger)
	a.SessionHandler = handlers.NewSessionHandler(a.SessionManager, a.QAService, a.FetcherService, a.ExportService, a.Logger)
	a.PageHandler = handlers.NewPageHandler(a.StorageManager.PageStorage(), a.ExportService, a.Logger)
	a.KVHandler = handlers.NewKVHandler(a.StorageManager.KVStorage(), a.Logger)

	// The WebSocket handler subscribes to session events on construction
	a.WSHandler = handlers.NewWebSocketHandler(a.SessionManager, a.QAService, a.EventService, a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
	return nil
}

// initScheduler registers the maintenance jobs and starts the cron loop
func (a *App) initScheduler() error {
	idleTTL := a.Config.Sessions.IdleTTL()
	if err := a.SchedulerService.RegisterJob("session-sweep", a.Config.Sessions.SweepSchedule, func() error {
		if swept := a.SessionManager.SweepIdle(idleTTL); swept > 0 {
			a.Logger.Info().Int("swept", swept).Msg("Idle sessions removed")
		}
		return nil
	}); err != nil {
		return err
	}

	pages := a.StorageManager.PageStorage()
	cacheTTL := a.Config.Fetcher.PageCacheTTL()
	if err := a.SchedulerService.RegisterJob("page-purge", a.Config.Fetcher.PurgeSchedule, func() error {
		purged, err := pages.DeleteExpired(context.Background(), cacheTTL)
		if err != nil {
			return err
		}
		if purged > 0 {
			a.Logger.Info().Int("purged", purged).Msg("Expired cached pages removed")
		}
		return nil
	}); err != nil {
		return err
	}

	// Value log GC needs the raw Badger handle underneath badgerhold
	badgerStore, ok := a.StorageManager.DB().(*badgerhold.Store)
	if !ok {
		return fmt.Errorf("storage manager is not backed by BadgerDB (got %T)", a.StorageManager.DB())
	}
	db := badgerStore.Badger()
	if err := a.SchedulerService.RegisterJob("badger-gc", a.Config.Storage.Badger.GCSchedule, func() error {
		// ErrNoRewrite means there was nothing worth collecting
		if err := db.RunValueLogGC(0.5); err != nil && err != badgerdb.ErrNoRewrite {
			return err
		}
		return nil
	}); err != nil {
		return err
	}

	return a.SchedulerService.Start()
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop scheduler service
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	// Stop log streamer; pending batches flush to connected clients
	if a.LogStreamer != nil {
		a.LogStreamer.Stop()
	}

	// Close fetcher (shuts down the headless browser if one was launched)
	if a.FetcherService != nil {
		a.FetcherService.Close()
	}

	// Close provider clients
	if a.Factory != nil {
		if err := a.Factory.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close provider factory")
		}
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
