// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"

	"github.com/ternarybob/rogo/internal/models"
)

// AIProvider defines the operations every chat provider backend supports:
// embedding text for the vector index and generating answer text. Credential
// problems surface from Validate; Embed/Generate report transport and model
// errors. Implementations apply their own request timeouts and rate limits.
type AIProvider interface {
	// EmbedDocuments generates one embedding vector per input text, in input
	// order. Used when building the index over document chunks.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates the embedding for a search query. Providers that
	// distinguish document and query embedding tasks honor that here.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Generate produces a completion for the assembled prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Validate checks the credential with a cheap API call. Returns
	// models.InvalidCredentialError when the provider rejects the key.
	Validate(ctx context.Context) error

	// ProviderID returns the stable identifier ("openai", "gemini", "claude").
	ProviderID() string

	// DisplayName returns the human-readable provider name.
	DisplayName() string

	// Close releases HTTP connections and client resources.
	Close() error
}

// ProviderFactory creates and caches AIProvider instances keyed by provider
// id and credential, so repeated lookups reuse validated clients.
type ProviderFactory interface {
	// Provider returns a ready client for the given configuration.
	// Unknown ids return models.UnsupportedProviderError; blank credentials
	// return models.MissingCredentialError.
	Provider(ctx context.Context, cfg models.ProviderConfig) (AIProvider, error)

	// Describe returns the redacted effective configuration for a selection
	// without resolving credentials or building a client. Ready is left for
	// the caller to fill.
	Describe(cfg models.ProviderConfig) models.ProviderInfo

	// Close releases every cached provider.
	Close() error
}
