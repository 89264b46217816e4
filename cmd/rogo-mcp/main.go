package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/models"
	"github.com/ternarybob/rogo/internal/services/events"
	"github.com/ternarybob/rogo/internal/services/fetcher"
	"github.com/ternarybob/rogo/internal/services/llm"
	"github.com/ternarybob/rogo/internal/services/qa"
	"github.com/ternarybob/rogo/internal/services/session"
	"github.com/ternarybob/rogo/internal/storage"
)

func main() {
	// Load configuration
	configPath := os.Getenv("ROGO_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("rogo.toml"); err == nil {
			configPath = "rogo.toml"
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize minimal logger for MCP server (console only, no file output)
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn") // Minimal logging to avoid cluttering MCP stdio

	// Initialize storage (shares the page cache with the HTTP server)
	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer storageManager.Close()

	// Initialize services for the single in-process session
	eventService := events.NewService(logger)
	defer eventService.Close()

	factory := llm.NewFactory(config, storageManager.KVStorage(), logger)
	defer factory.Close()

	fetcherService := fetcher.NewService(config, storageManager.PageStorage(), storageManager.KVStorage(), logger)
	defer fetcherService.Close()

	sessions := session.NewManager(config, logger)
	qaService := qa.NewService(factory, eventService, config, logger)

	// All tools operate on one session created at startup
	sess, err := sessions.Create("", 0, -1)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create session")
	}

	// Configure the default provider up front. Failure is not fatal:
	// load_page works without a provider, and ask_question reports
	// readiness to the caller.
	if _, err := qaService.ConfigureProvider(context.Background(), sess, models.ProviderConfig{}); err != nil {
		logger.Warn().Err(err).Msg("Provider not configured; set an API key to answer questions")
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"rogo",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register page QA tools
	mcpServer.AddTool(createLoadPageTool(), handleLoadPage(fetcherService, qaService, sess, logger))
	mcpServer.AddTool(createAskQuestionTool(), handleAskQuestion(qaService, sess, logger))
	mcpServer.AddTool(createPageStatsTool(), handlePageStats(qaService, sess))
	mcpServer.AddTool(createResetSessionTool(), handleResetSession(qaService, sess))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
