package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/services/fetcher"
	"github.com/ternarybob/rogo/internal/services/qa"
	"github.com/ternarybob/rogo/internal/services/session"
)

// textResult wraps a markdown string as a tool result
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleLoadPage implements the load_page tool
func handleLoadPage(fetcherService *fetcher.Service, qaService *qa.Service, sess *session.Session, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse url parameter (required)
		pageURL, err := request.RequireString("url")
		if err != nil || pageURL == "" {
			return textResult("Error: url parameter is required"), nil
		}

		// Absent chunk settings fall back to the session's configured
		// defaults; an explicit zero overlap is honored.
		chunkSize := request.GetInt("chunk_size", 0)
		chunkOverlap := request.GetInt("chunk_overlap", -1)

		page, err := fetcherService.Fetch(ctx, pageURL, interfaces.FetchOptions{})
		if err != nil {
			logger.Error().Err(err).Str("url", pageURL).Msg("Page fetch failed")
			return textResult(fmt.Sprintf("Failed to fetch %s: %v", pageURL, err)), nil
		}

		result, err := qaService.ProcessDocuments(ctx, sess, page, chunkSize, chunkOverlap)
		if err != nil {
			logger.Error().Err(err).Str("url", pageURL).Msg("Page processing failed")
			return textResult(fmt.Sprintf("Failed to process page: %v", err)), nil
		}

		return textResult(formatLoadResult(page, result)), nil
	}
}

// handleAskQuestion implements the ask_question tool
func handleAskQuestion(qaService *qa.Service, sess *session.Session, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse question parameter (required)
		question, err := request.RequireString("question")
		if err != nil || question == "" {
			return textResult("Error: question parameter is required"), nil
		}

		// Ask never fails outright; pipeline errors come back as a
		// user-presentable answer with the failure attached.
		answer := qaService.Ask(ctx, sess, question)
		if answer.Err != nil {
			logger.Warn().
				Str("kind", string(answer.Err.Kind)).
				Str("message", answer.Err.Message).
				Msg("Question answering failed")
		}

		return textResult(formatAnswer(answer)), nil
	}
}

// handlePageStats implements the page_stats tool
func handlePageStats(qaService *qa.Service, sess *session.Session) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		info := sess.Info()
		provider := qaService.ProviderInfo(sess)
		stats := qaService.Stats(sess)
		ready := qaService.IsReady(sess)

		return textResult(formatStats(info, provider, stats, ready)), nil
	}
}

// handleResetSession implements the reset_session tool
func handleResetSession(qaService *qa.Service, sess *session.Session) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		qaService.Reset(ctx, sess)
		return textResult("Session reset. Load a page with load_page to start again."), nil
	}
}
