package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/rogo/internal/models"
	"github.com/ternarybob/rogo/internal/services/qa"
)

// formatLoadResult formats the outcome of a page load as markdown
func formatLoadResult(page *models.Page, result *qa.ProcessResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Loaded \"%s\"\n\n", page.Title))
	if page.URL != "" {
		sb.WriteString(fmt.Sprintf("**URL:** %s\n", page.URL))
	}
	sb.WriteString(fmt.Sprintf("**Fetched:** %s\n", page.FetchedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("**Content length:** %d characters\n\n", page.ContentLength))

	if result.NoContent {
		sb.WriteString("The page contains no extractable text.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Split into %d chunks (size %d, overlap %d, avg %.2f characters).\n",
		result.Stats.TotalChunks, result.Stats.ChunkSize, result.Stats.ChunkOverlap, result.Stats.AvgChunkSize))
	sb.WriteString("\nAsk about the page with the ask_question tool.\n")

	return sb.String()
}

// formatAnswer formats an answer and its cited sources as markdown
func formatAnswer(answer *models.Answer) string {
	var sb strings.Builder
	sb.WriteString(answer.Text)
	sb.WriteString("\n")

	if len(answer.Sources) > 0 {
		sb.WriteString("\n### Sources\n\n")
		for i, source := range answer.Sources {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, source.Content))
		}
	}

	return sb.String()
}

// formatStats formats the session state and chunk statistics as markdown
func formatStats(info models.SessionInfo, provider models.ProviderInfo, stats *models.ProcessingStats, ready bool) string {
	var sb strings.Builder
	sb.WriteString("## Session\n\n")
	sb.WriteString(fmt.Sprintf("**State:** %s\n", info.State))
	sb.WriteString(fmt.Sprintf("**Provider:** %s (ready: %v)\n", provider.DisplayName, ready))
	if info.DocumentURL != "" {
		sb.WriteString(fmt.Sprintf("**Document:** %s\n", info.DocumentURL))
	}
	sb.WriteString(fmt.Sprintf("**Messages:** %d\n", info.MessageCount))

	if stats != nil && stats.TotalChunks > 0 {
		sb.WriteString(fmt.Sprintf("\n**Chunks:** %d (size %d, overlap %d)\n",
			stats.TotalChunks, stats.ChunkSize, stats.ChunkOverlap))
		sb.WriteString(fmt.Sprintf("**Characters:** %d (avg chunk %.2f)\n",
			stats.TotalCharacters, stats.AvgChunkSize))
	} else {
		sb.WriteString("\nNo page loaded yet. Use load_page to fetch one.\n")
	}

	return sb.String()
}
