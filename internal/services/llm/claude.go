package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
)

// claudeDefaultMaxTokens caps answer length when no limit is configured.
const claudeDefaultMaxTokens = 2048

// claudeProvider generates with the Anthropic API. Anthropic has no embedding
// endpoint, so embeddings run through a Gemini client built from the separate
// Google credential.
type claudeProvider struct {
	client      anthropic.Client
	embed       *geminiProvider
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
	retry       retryPolicy
	logger      arbor.ILogger
}

var _ interfaces.AIProvider = (*claudeProvider)(nil)

func newClaudeProvider(ctx context.Context, cfg models.ProviderConfig, maxTokens, embedOutputDim int, opts providerOptions, logger arbor.ILogger) (*claudeProvider, error) {
	if cfg.EmbedCredential == "" {
		return nil, &models.MissingCredentialError{Provider: models.ProviderGemini}
	}

	embedCfg := models.ProviderConfig{
		Provider:       models.ProviderGemini,
		Credential:     cfg.EmbedCredential,
		EmbeddingModel: cfg.EmbeddingModel,
	}
	embed, err := newGeminiProvider(ctx, embedCfg, embedOutputDim, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	if maxTokens <= 0 {
		maxTokens = claudeDefaultMaxTokens
	}

	return &claudeProvider{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.Credential)),
		embed:       embed,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     opts.timeout,
		limiter:     opts.limiter,
		retry:       opts.retry,
		logger:      logger,
	}, nil
}

func (p *claudeProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed.EmbedDocuments(ctx, texts)
}

func (p *claudeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed.EmbedQuery(ctx, text)
}

// Generate produces a completion for the assembled prompt.
func (p *claudeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty for generation")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	startTime := time.Now()
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if p.temperature > 0 {
		params.Temperature = anthropic.Float(p.temperature)
	}

	var resp *anthropic.Message
	err := p.retry.do(ctx, p.logger, "generate", func() error {
		if waitErr := p.limiter.Wait(ctx); waitErr != nil {
			return waitErr
		}
		var callErr error
		resp, callErr = p.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return "", wrapTimeout("generate", p.mapAuthError(err))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	p.logger.Debug().
		Int("prompt_length", len(prompt)).
		Dur("duration", time.Since(startTime)).
		Msg("Claude chat completion completed")

	return text.String(), nil
}

// Validate probes both credentials: the Google key with an embedding call and
// the Anthropic key with a minimal one-token message.
func (p *claudeProvider) Validate(ctx context.Context) error {
	if err := p.embed.Validate(ctx); err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.limiter.Wait(probeCtx); err != nil {
		return wrapTimeout("validate", waitErr(probeCtx, err))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 8,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	}
	if _, err := p.client.Messages.New(probeCtx, params); err != nil {
		return wrapTimeout("validate", p.mapAuthError(err))
	}
	return nil
}

func (p *claudeProvider) ProviderID() string {
	return models.ProviderClaude
}

func (p *claudeProvider) DisplayName() string {
	return models.ProviderDisplayName(models.ProviderClaude)
}

func (p *claudeProvider) Close() error {
	return p.embed.Close()
}

// mapAuthError surfaces credential rejections as typed errors.
func (p *claudeProvider) mapAuthError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	if strings.Contains(errStr, "authentication_error") ||
		strings.Contains(errStr, "invalid x-api-key") ||
		strings.Contains(errStr, "401") {
		return &models.InvalidCredentialError{Provider: models.ProviderClaude, Err: err}
	}
	return err
}
