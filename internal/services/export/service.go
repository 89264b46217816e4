// Package export renders session transcripts as markdown, standalone HTML,
// and PDF documents for download.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
)

// Service implements interfaces.ExportService.
type Service struct {
	md     goldmark.Markdown
	logger arbor.ILogger
}

var _ interfaces.ExportService = (*Service)(nil)

// NewService creates the export service with a GFM-enabled markdown renderer.
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		),
		logger: logger,
	}
}

// TranscriptMarkdown renders the conversation as a markdown document:
// a header block with session facts, then the messages in order with their
// cited sources.
func (s *Service) TranscriptMarkdown(info models.SessionInfo, messages []models.ChatMessage) string {
	var b strings.Builder

	b.WriteString("# Chat Transcript\n\n")
	b.WriteString(fmt.Sprintf("- Session: `%s`\n", info.ID))
	if info.DocumentURL != "" {
		b.WriteString(fmt.Sprintf("- Document: %s\n", info.DocumentURL))
	}
	if info.Provider != "" {
		b.WriteString(fmt.Sprintf("- Provider: %s\n", models.ProviderDisplayName(info.Provider)))
	}
	b.WriteString(fmt.Sprintf("- Messages: %d\n", len(messages)))
	b.WriteString(fmt.Sprintf("- Exported: %s\n", time.Now().UTC().Format("2006-01-02 15:04 UTC")))

	for _, msg := range messages {
		b.WriteString("\n---\n\n")
		b.WriteString(fmt.Sprintf("### %s (%s)\n\n", roleLabel(msg.Role), msg.CreatedAt.Format("2006-01-02 15:04:05")))
		b.WriteString(strings.TrimSpace(msg.Content))
		b.WriteString("\n")

		if len(msg.Sources) > 0 {
			b.WriteString("\nSources:\n\n")
			for i, src := range msg.Sources {
				b.WriteString(fmt.Sprintf("%d. %s", i+1, flattenContent(src.Content)))
				if src.Metadata.URL != "" {
					b.WriteString(fmt.Sprintf(" (%s)", src.Metadata.URL))
				}
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

// TranscriptHTML renders the conversation as a standalone styled page.
func (s *Service) TranscriptHTML(info models.SessionInfo, messages []models.ChatMessage) (string, error) {
	body, err := s.RenderHTML(s.TranscriptMarkdown(info, messages))
	if err != nil {
		return "", err
	}
	return wrapInPage(body), nil
}

// TranscriptPDF renders the conversation as a PDF document.
func (s *Service) TranscriptPDF(info models.SessionInfo, messages []models.ChatMessage) ([]byte, error) {
	data, err := markdownPDF(s.TranscriptMarkdown(info, messages))
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", info.ID).Msg("Transcript PDF generation failed")
		return nil, err
	}

	s.logger.Debug().
		Str("session_id", info.ID).
		Int("pdf_size", len(data)).
		Msg("Transcript PDF generated")

	return data, nil
}

// RenderHTML converts markdown to an HTML fragment. Raw HTML in the input is
// escaped by the renderer, so model output cannot inject markup.
func (s *Service) RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown to HTML: %w", err)
	}
	return buf.String(), nil
}

func roleLabel(role string) string {
	switch role {
	case models.RoleUser:
		return "You"
	case models.RoleAssistant:
		return "Assistant"
	default:
		return role
	}
}

// flattenContent makes chunk text safe inside a one-line list item.
func flattenContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// wrapInPage wraps rendered transcript HTML in a minimal standalone page.
func wrapInPage(content string) string {
	return `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Chat Transcript</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
      line-height: 1.6;
      color: #333;
      max-width: 800px;
      margin: 0 auto;
      padding: 20px;
      background-color: #f9f9f9;
    }
    .content { background-color: #fff; padding: 30px; border-radius: 8px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
    h1 { color: #1a1a1a; font-size: 24px; margin-top: 0; border-bottom: 2px solid #eee; padding-bottom: 10px; }
    h3 { color: #3a3a3a; font-size: 16px; margin-top: 20px; }
    p { margin: 12px 0; }
    ul, ol { padding-left: 24px; margin: 12px 0; }
    li { margin: 6px 0; }
    code { background: #f4f4f4; padding: 2px 6px; border-radius: 3px; font-family: 'SF Mono', Monaco, 'Courier New', monospace; font-size: 14px; }
    pre { background: #f4f4f4; padding: 16px; border-radius: 6px; overflow-x: auto; font-size: 13px; }
    blockquote { border-left: 4px solid #ddd; margin: 16px 0; padding-left: 16px; color: #666; }
    table { border-collapse: collapse; width: 100%; margin: 16px 0; }
    th, td { border: 1px solid #ddd; padding: 8px 12px; text-align: left; }
    th { background: #f4f4f4; font-weight: 600; }
    hr { border: none; border-top: 1px solid #eee; margin: 24px 0; }
    a { color: #0066cc; text-decoration: none; }
  </style>
</head>
<body>
  <div class="content">
    ` + content + `
  </div>
</body>
</html>`
}
