package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/models"
)

func testTranscript() (models.SessionInfo, []models.ChatMessage) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	info := models.SessionInfo{
		ID:          "sess_42",
		State:       models.SessionStateIndexReady,
		Provider:    "openai",
		DocumentURL: "https://example.com/docs",
		CreatedAt:   created,
	}
	messages := []models.ChatMessage{
		{
			ID:        "msg_1",
			Role:      models.RoleUser,
			Content:   "What is the return policy?",
			CreatedAt: created,
		},
		{
			ID:      "msg_2",
			Role:    models.RoleAssistant,
			Content: "Returns are accepted within **30 days**.",
			Sources: []models.Source{
				{
					Content: "Our return policy\nallows returns within 30 days of purchase.",
					Metadata: models.ChunkMetadata{
						PageMetadata: models.PageMetadata{URL: "https://example.com/docs"},
					},
				},
			},
			CreatedAt: created.Add(2 * time.Second),
		},
	}
	return info, messages
}

func TestTranscriptMarkdown(t *testing.T) {
	svc := NewService(common.GetLogger())
	info, messages := testTranscript()

	md := svc.TranscriptMarkdown(info, messages)

	assert.True(t, strings.HasPrefix(md, "# Chat Transcript\n"))
	assert.Contains(t, md, "- Session: `sess_42`")
	assert.Contains(t, md, "- Document: https://example.com/docs")
	assert.Contains(t, md, "- Provider: OpenAI (GPT)")
	assert.Contains(t, md, "- Messages: 2")
	assert.Contains(t, md, "### You (2026-03-14 09:26:53)")
	assert.Contains(t, md, "What is the return policy?")
	assert.Contains(t, md, "### Assistant (2026-03-14 09:26:55)")
	assert.Contains(t, md, "Returns are accepted within **30 days**.")

	// Source content flattens to one line inside the numbered list.
	assert.Contains(t, md, "1. Our return policy allows returns within 30 days of purchase. (https://example.com/docs)")
}

func TestTranscriptMarkdownOmitsEmptyFields(t *testing.T) {
	svc := NewService(common.GetLogger())

	md := svc.TranscriptMarkdown(models.SessionInfo{ID: "sess_empty"}, nil)

	assert.Contains(t, md, "- Session: `sess_empty`")
	assert.NotContains(t, md, "- Document:")
	assert.NotContains(t, md, "- Provider:")
	assert.Contains(t, md, "- Messages: 0")
}

func TestRenderHTML(t *testing.T) {
	svc := NewService(common.GetLogger())

	out, err := svc.RenderHTML("## Heading\n\nSome *styled* text.\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)

	assert.Contains(t, out, "<h2")
	assert.Contains(t, out, "<em>styled</em>")
	assert.Contains(t, out, "<table>")
}

func TestRenderHTMLEscapesRawMarkup(t *testing.T) {
	svc := NewService(common.GetLogger())

	out, err := svc.RenderHTML("hello <script>alert(1)</script>")
	require.NoError(t, err)

	assert.NotContains(t, out, "<script>")
}

func TestTranscriptHTML(t *testing.T) {
	svc := NewService(common.GetLogger())
	info, messages := testTranscript()

	page, err := svc.TranscriptHTML(info, messages)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<title>Chat Transcript</title>")
	assert.Contains(t, page, "<h1")
	assert.Contains(t, page, "<strong>30 days</strong>")
}

func TestTranscriptPDF(t *testing.T) {
	svc := NewService(common.GetLogger())
	info, messages := testTranscript()

	data, err := svc.TranscriptPDF(info, messages)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
	assert.Greater(t, len(data), 500)
}

func TestMarkdownPDFHandlesRichContent(t *testing.T) {
	md := strings.Join([]string{
		"# Title",
		"",
		"Intro paragraph with **bold**, *italic*, and `code`.",
		"",
		"- first bullet",
		"- second bullet",
		"",
		"1. ordered one",
		"2. ordered two",
		"",
		"> quoted text",
		"",
		"```",
		"fenced code line",
		"```",
		"",
		"| col a | col b |",
		"|-------|-------|",
		"| 1     | 2     |",
		"",
		"---",
		"",
		"Visit https://example.com for details.",
	}, "\n")

	data, err := markdownPDF(md)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
}
