package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
)

// geminiEmbedBatchSize is the Gemini batch embedding request limit.
const geminiEmbedBatchSize = 100

// geminiProvider implements the provider contract with the Google Gemini API.
// It also serves as the embedding backend for the Claude provider, which has
// no embedding endpoint of its own.
type geminiProvider struct {
	client      *genai.Client
	model       string
	embedModel  string
	outputDim   int32
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
	retry       retryPolicy
	logger      arbor.ILogger
}

var _ interfaces.AIProvider = (*geminiProvider)(nil)

func newGeminiProvider(ctx context.Context, cfg models.ProviderConfig, outputDim int, opts providerOptions, logger arbor.ILogger) (*geminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Credential,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	return &geminiProvider{
		client:      client,
		model:       cfg.Model,
		embedModel:  cfg.EmbeddingModel,
		outputDim:   int32(outputDim),
		temperature: float32(cfg.Temperature),
		timeout:     opts.timeout,
		limiter:     opts.limiter,
		retry:       opts.retry,
		logger:      logger,
	}, nil
}

// EmbedDocuments generates one vector per input text, in input order.
func (p *geminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiEmbedBatchSize {
		end := start + geminiEmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, wrapTimeout("embed", p.mapAuthError(err))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (p *geminiProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	var config *genai.EmbedContentConfig
	if p.outputDim > 0 {
		outputDim := p.outputDim
		config = &genai.EmbedContentConfig{OutputDimensionality: &outputDim}
	}

	var result *genai.EmbedContentResponse
	err := p.retry.do(ctx, p.logger, "embeddings", func() error {
		if waitErr := p.limiter.Wait(ctx); waitErr != nil {
			return waitErr
		}
		var callErr error
		result, callErr = p.client.Models.EmbedContent(ctx, p.embedModel, contents, config)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if result == nil || len(result.Embeddings) != len(texts) {
		count := 0
		if result != nil {
			count = len(result.Embeddings)
		}
		return nil, fmt.Errorf("embedding count mismatch: sent %d inputs, got %d vectors", len(texts), count)
	}

	vectors := make([][]float32, len(texts))
	for i, embedding := range result.Embeddings {
		if embedding == nil || len(embedding.Values) == 0 {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
		vectors[i] = embedding.Values
	}
	return vectors, nil
}

// EmbedQuery generates a vector for a single query string.
func (p *geminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding generation")
	}

	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Generate produces a completion for the assembled prompt.
func (p *geminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty for generation")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	startTime := time.Now()
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	config := &genai.GenerateContentConfig{}
	if p.temperature > 0 {
		config.Temperature = genai.Ptr(p.temperature)
	}

	var resp *genai.GenerateContentResponse
	err := p.retry.do(ctx, p.logger, "generate", func() error {
		if waitErr := p.limiter.Wait(ctx); waitErr != nil {
			return waitErr
		}
		var callErr error
		resp, callErr = p.client.Models.GenerateContent(ctx, p.model, contents, config)
		return callErr
	})
	if err != nil {
		return "", wrapTimeout("generate", p.mapAuthError(err))
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response generated from Gemini API")
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty text in Gemini response")
	}

	p.logger.Debug().
		Int("prompt_length", len(prompt)).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini chat completion completed")

	return text, nil
}

// Validate checks the API key with a minimal embedding probe.
func (p *geminiProvider) Validate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := p.embedBatch(ctx, []string{"test"}); err != nil {
		return wrapTimeout("validate", p.mapAuthError(err))
	}
	return nil
}

func (p *geminiProvider) ProviderID() string {
	return models.ProviderGemini
}

func (p *geminiProvider) DisplayName() string {
	return models.ProviderDisplayName(models.ProviderGemini)
}

func (p *geminiProvider) Close() error {
	p.client = nil
	return nil
}

// mapAuthError surfaces credential rejections as typed errors. The genai SDK
// reports failures as plain errors, so detection is string based.
func (p *geminiProvider) mapAuthError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	if strings.Contains(errStr, "API key not valid") ||
		strings.Contains(errStr, "API_KEY_INVALID") ||
		strings.Contains(errStr, "PERMISSION_DENIED") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") {
		return &models.InvalidCredentialError{Provider: models.ProviderGemini, Err: err}
	}
	return err
}
