package prompt

import (
	"fmt"

	"github.com/ternarybob/rogo/internal/models"
)

// Provider-specific system preambles. Wording varies by provider family but
// every variant carries the same three instructions: answer as the persona,
// admit when the answer is not in the context, and close with the fixed
// phrase.

const openAISystemTemplate = `You are a helpful AI assistant representing %s.
Your role is to provide accurate, helpful, and concise answers based on the provided context.
Always be polite, professional, and end your responses with "thanks for asking!"
If you don't know something, admit it rather than making up information.`

const geminiSystemTemplate = `You are an intelligent AI assistant for %s.
Use the provided context to answer questions accurately and helpfully.
Be concise but informative in your responses.
Always maintain a friendly, professional tone and end with "thanks for asking!"
If the answer isn't in the context, politely say you don't know.`

const claudeSystemTemplate = `You are a helpful chatbot assistant for %s.
Use the following pieces of context to answer the question at the end.
Keep the answer as concise as possible while being informative.
Always say "thanks for asking!" at the end of the answer.
If you don't know the answer, just say that you don't know, don't try to make up an answer.`

// systemPreamble selects the phrasing for a provider. Unknown provider ids
// fall back to the OpenAI wording.
func systemPreamble(providerID, persona string) string {
	switch providerID {
	case models.ProviderGemini:
		return fmt.Sprintf(geminiSystemTemplate, persona)
	case models.ProviderClaude:
		return fmt.Sprintf(claudeSystemTemplate, persona)
	default:
		return fmt.Sprintf(openAISystemTemplate, persona)
	}
}
