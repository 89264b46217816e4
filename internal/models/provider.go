package models

// Provider identifiers accepted in configuration and API payloads.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
)

// ProviderDisplayName maps a provider id to its human-readable name.
// Unknown ids fall back to the id itself.
func ProviderDisplayName(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OpenAI (GPT)"
	case ProviderGemini:
		return "Google Gemini"
	case ProviderClaude:
		return "Anthropic Claude"
	default:
		return provider
	}
}

// SupportedProvider reports whether the id names a known provider.
func SupportedProvider(provider string) bool {
	switch provider {
	case ProviderOpenAI, ProviderGemini, ProviderClaude:
		return true
	}
	return false
}

// ProviderConfig selects and parameterizes an AI provider. Credential
// is the provider's own API key. EmbedCredential is only consulted by
// providers that delegate embeddings elsewhere (Claude embeds through
// Gemini).
type ProviderConfig struct {
	Provider        string  `json:"provider"`
	Credential      string  `json:"-"`
	EmbedCredential string  `json:"-"`
	Model           string  `json:"model,omitempty"`
	EmbeddingModel  string  `json:"embedding_model,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

// ProviderInfo is the redacted provider summary exposed over the API.
type ProviderInfo struct {
	Provider       string `json:"provider"`
	DisplayName    string `json:"display_name"`
	Model          string `json:"model"`
	EmbeddingModel string `json:"embedding_model"`
	Ready          bool   `json:"ready"`
}
