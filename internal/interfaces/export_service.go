package interfaces

import "github.com/ternarybob/rogo/internal/models"

// ExportService renders session transcripts and cached page content for
// download and preview.
type ExportService interface {
	// TranscriptMarkdown renders the conversation as a markdown document.
	TranscriptMarkdown(info models.SessionInfo, messages []models.ChatMessage) string

	// TranscriptHTML renders the conversation as a standalone HTML page.
	TranscriptHTML(info models.SessionInfo, messages []models.ChatMessage) (string, error)

	// TranscriptPDF renders the conversation as a PDF document.
	TranscriptPDF(info models.SessionInfo, messages []models.ChatMessage) ([]byte, error)

	// RenderHTML converts markdown to an HTML fragment.
	RenderHTML(markdown string) (string, error)
}
