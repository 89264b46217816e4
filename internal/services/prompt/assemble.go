// Package prompt assembles generation prompts from retrieved context.
package prompt

import (
	"strings"

	"github.com/ternarybob/rogo/internal/models"
)

// DefaultPersona names the assistant when no persona is configured.
const DefaultPersona = "BotPenguin"

// contextDelimiter separates chunk contents inside the context block.
const contextDelimiter = "\n\n"

// Assemble builds the full generation prompt: the provider's system preamble,
// the retrieved chunk contents in retrieval order, and the verbatim question.
// Pure string construction; no retrieval or generation side effects.
func Assemble(chunks []models.Chunk, question, persona, providerID string) string {
	if persona == "" {
		persona = DefaultPersona
	}

	var b strings.Builder
	b.WriteString(systemPreamble(providerID, persona))
	b.WriteString("\n\nContext from website:\n")
	b.WriteString(contextBlock(chunks))
	b.WriteString("\n\nUser Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAssistant Response:")
	return b.String()
}

func contextBlock(chunks []models.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, chunk.Content)
	}
	return strings.Join(parts, contextDelimiter)
}
