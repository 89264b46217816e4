// Package llm provides the AI provider factory and the OpenAI, Gemini, and
// Claude implementations of the provider contract.
package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
)

// providerOptions carries the tuning shared by all provider implementations.
type providerOptions struct {
	timeout time.Duration
	limiter *rate.Limiter
	retry   retryPolicy
}

// cacheKey identifies a provider instance. Credentials are part of the key so
// a key change mid-session produces a fresh client.
type cacheKey struct {
	provider        string
	credential      string
	embedCredential string
}

// Factory builds and caches AI providers. Selections with the same provider
// and credentials share one instance.
type Factory struct {
	config *common.Config
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger

	mu    sync.Mutex
	cache map[cacheKey]interfaces.AIProvider
}

var _ interfaces.ProviderFactory = (*Factory)(nil)

// NewFactory creates a provider factory. kv may be nil, in which case keys
// resolve from environment variables and config only.
func NewFactory(config *common.Config, kv interfaces.KeyValueStorage, logger arbor.ILogger) *Factory {
	return &Factory{
		config: config,
		kv:     kv,
		logger: logger,
		cache:  make(map[cacheKey]interfaces.AIProvider),
	}
}

// Provider returns a ready client for the selection, resolving credentials
// and model defaults from configuration.
func (f *Factory) Provider(ctx context.Context, selection models.ProviderConfig) (interfaces.AIProvider, error) {
	resolved, err := f.resolve(ctx, selection)
	if err != nil {
		return nil, err
	}

	key := cacheKey{
		provider:        resolved.Provider,
		credential:      resolved.Credential,
		embedCredential: resolved.EmbedCredential,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if provider, ok := f.cache[key]; ok {
		return provider, nil
	}

	provider, err := f.build(ctx, resolved)
	if err != nil {
		return nil, err
	}

	f.logger.Info().
		Str("provider", resolved.Provider).
		Str("model", resolved.Model).
		Str("embedding_model", resolved.EmbeddingModel).
		Msg("AI provider initialized")

	f.cache[key] = provider
	return provider, nil
}

// Close shuts down all cached providers and clears the cache.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key, provider := range f.cache {
		if err := provider.Close(); err != nil {
			f.logger.Warn().Err(err).Str("provider", key.provider).Msg("Failed to close provider")
		}
	}
	f.cache = make(map[cacheKey]interfaces.AIProvider)
	return nil
}

// Configured reports whether credentials for the named provider can be
// resolved from the environment, the KV store, or configuration. No client is
// built and nothing is validated against the provider's API.
func (f *Factory) Configured(ctx context.Context, provider string) bool {
	_, err := f.resolve(ctx, models.ProviderConfig{Provider: provider})
	return err == nil
}

// Describe returns the redacted effective configuration for a selection
// without resolving credentials or building a client. Ready is left false;
// the caller knows whether a provider is attached.
func (f *Factory) Describe(selection models.ProviderConfig) models.ProviderInfo {
	resolved, err := f.applyDefaults(selection)
	if err != nil {
		id := strings.ToLower(strings.TrimSpace(selection.Provider))
		return models.ProviderInfo{Provider: id, DisplayName: models.ProviderDisplayName(id)}
	}

	return models.ProviderInfo{
		Provider:       resolved.Provider,
		DisplayName:    models.ProviderDisplayName(resolved.Provider),
		Model:          resolved.Model,
		EmbeddingModel: resolved.EmbeddingModel,
	}
}

// applyDefaults normalizes the provider id and fills missing model names and
// temperature from configuration. Credentials are left untouched.
func (f *Factory) applyDefaults(selection models.ProviderConfig) (models.ProviderConfig, error) {
	resolved := selection
	resolved.Provider = strings.ToLower(strings.TrimSpace(selection.Provider))
	if resolved.Provider == "" {
		resolved.Provider = f.config.Providers.Default
	}
	if !models.SupportedProvider(resolved.Provider) {
		return models.ProviderConfig{}, &models.UnsupportedProviderError{Provider: resolved.Provider}
	}

	if resolved.Temperature == 0 {
		resolved.Temperature = f.config.Providers.Temperature
	}

	providers := f.config.Providers
	switch resolved.Provider {
	case models.ProviderOpenAI:
		if resolved.Model == "" {
			resolved.Model = providers.OpenAI.Model
		}
		if resolved.EmbeddingModel == "" {
			resolved.EmbeddingModel = providers.OpenAI.EmbeddingModel
		}

	case models.ProviderGemini:
		if resolved.Model == "" {
			resolved.Model = providers.Gemini.Model
		}
		if resolved.EmbeddingModel == "" {
			resolved.EmbeddingModel = providers.Gemini.EmbeddingModel
		}

	case models.ProviderClaude:
		if resolved.Model == "" {
			resolved.Model = providers.Claude.Model
		}
		// Claude embeds through Gemini, so the embedding default follows the
		// Gemini section.
		if resolved.EmbeddingModel == "" {
			resolved.EmbeddingModel = providers.Gemini.EmbeddingModel
		}
	}

	return resolved, nil
}

// resolve applies defaults and fills missing credentials from environment
// variables, the KV store, and configuration.
func (f *Factory) resolve(ctx context.Context, selection models.ProviderConfig) (models.ProviderConfig, error) {
	resolved, err := f.applyDefaults(selection)
	if err != nil {
		return models.ProviderConfig{}, err
	}

	providers := f.config.Providers
	switch resolved.Provider {
	case models.ProviderOpenAI:
		if resolved.Credential == "" {
			key, err := common.ResolveAPIKey(ctx, f.kv, "openai_api_key", providers.OpenAI.APIKey)
			if err != nil {
				return models.ProviderConfig{}, &models.MissingCredentialError{Provider: models.ProviderOpenAI}
			}
			resolved.Credential = key
		}

	case models.ProviderGemini:
		if resolved.Credential == "" {
			key, err := common.ResolveAPIKey(ctx, f.kv, "gemini_api_key", providers.Gemini.APIKey)
			if err != nil {
				return models.ProviderConfig{}, &models.MissingCredentialError{Provider: models.ProviderGemini}
			}
			resolved.Credential = key
		}

	case models.ProviderClaude:
		if resolved.Credential == "" {
			key, err := common.ResolveAPIKey(ctx, f.kv, "claude_api_key", providers.Claude.APIKey)
			if err != nil {
				return models.ProviderConfig{}, &models.MissingCredentialError{Provider: models.ProviderClaude}
			}
			resolved.Credential = key
		}
		if resolved.EmbedCredential == "" {
			fallback := providers.Claude.GoogleAPIKey
			if fallback == "" {
				fallback = providers.Gemini.APIKey
			}
			key, err := common.ResolveAPIKey(ctx, f.kv, "google_api_key", fallback)
			if err != nil {
				return models.ProviderConfig{}, &models.MissingCredentialError{Provider: models.ProviderGemini}
			}
			resolved.EmbedCredential = key
		}
	}

	return resolved, nil
}

func (f *Factory) build(ctx context.Context, resolved models.ProviderConfig) (interfaces.AIProvider, error) {
	opts := f.options()

	switch resolved.Provider {
	case models.ProviderOpenAI:
		return newOpenAIProvider(resolved, f.config.Providers.OpenAI.BaseURL, opts, f.logger), nil
	case models.ProviderGemini:
		return newGeminiProvider(ctx, resolved, f.config.Providers.Gemini.OutputDimensionality, opts, f.logger)
	case models.ProviderClaude:
		return newClaudeProvider(ctx, resolved, f.config.Providers.Claude.MaxTokens, f.config.Providers.Gemini.OutputDimensionality, opts, f.logger)
	default:
		return nil, &models.UnsupportedProviderError{Provider: resolved.Provider}
	}
}

func (f *Factory) options() providerOptions {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rpm := f.config.Providers.RequestsPerMinute; rpm > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}

	return providerOptions{
		timeout: f.config.Providers.Timeout(),
		limiter: limiter,
		retry:   newRetryPolicy(f.config.Providers.MaxRetries),
	}
}
