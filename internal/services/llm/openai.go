package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"

	// The embeddings endpoint accepts up to 2048 inputs per request; large
	// documents are embedded in slices well under that.
	openAIEmbedBatchSize = 512
)

// openAIProvider talks to the OpenAI REST API directly. Kept as plain HTTP so
// the base URL can point at Azure OpenAI or compatible endpoints.
type openAIProvider struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	model       string
	embedModel  string
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
	retry       retryPolicy
	logger      arbor.ILogger
}

var _ interfaces.AIProvider = (*openAIProvider)(nil)

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func newOpenAIProvider(cfg models.ProviderConfig, baseURL string, opts providerOptions, logger arbor.ILogger) *openAIProvider {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}

	return &openAIProvider{
		client:      &http.Client{},
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      cfg.Credential,
		model:       cfg.Model,
		embedModel:  cfg.EmbeddingModel,
		temperature: cfg.Temperature,
		timeout:     opts.timeout,
		limiter:     opts.limiter,
		retry:       opts.retry,
		logger:      logger,
	}
}

// EmbedDocuments generates one vector per input text, in input order.
func (p *openAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIEmbedBatchSize {
		end := start + openAIEmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, wrapTimeout("embed", err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (p *openAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var embedResp openAIEmbeddingResponse
	err := p.retry.do(ctx, p.logger, "embeddings", func() error {
		embedResp = openAIEmbeddingResponse{}
		return p.postJSON(ctx, "/embeddings", openAIEmbeddingRequest{Model: p.embedModel, Input: texts}, &embedResp)
	})
	if err != nil {
		return nil, err
	}
	if embedResp.Error != nil {
		return nil, fmt.Errorf("openai error: %s", embedResp.Error.Message)
	}

	// Responses carry an index per vector; reassemble in input order.
	vectors := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("openai returned embedding for unexpected index %d", data.Index)
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		vectors[data.Index] = vector
	}
	for i, vector := range vectors {
		if len(vector) == 0 {
			return nil, fmt.Errorf("openai returned no embedding for input %d", i)
		}
	}
	return vectors, nil
}

// EmbedQuery generates a vector for a single query string.
func (p *openAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
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
func (p *openAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty for generation")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	startTime := time.Now()
	reqBody := openAIChatRequest{
		Model:    p.model,
		Messages: []openAIMessage{{Role: "user", Content: prompt}},
	}
	if p.temperature > 0 {
		reqBody.Temperature = p.temperature
	}

	var chatResp openAIChatResponse
	err := p.retry.do(ctx, p.logger, "chat", func() error {
		chatResp = openAIChatResponse{}
		return p.postJSON(ctx, "/chat/completions", reqBody, &chatResp)
	})
	if err != nil {
		return "", wrapTimeout("generate", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("openai error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned from OpenAI API")
	}

	p.logger.Debug().
		Int("prompt_length", len(prompt)).
		Dur("duration", time.Since(startTime)).
		Msg("OpenAI chat completion completed")

	return chatResp.Choices[0].Message.Content, nil
}

// Validate checks the API key with a lightweight /models probe that runs no
// inference.
func (p *openAIProvider) Validate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return wrapTimeout("validate", waitErr(ctx, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return wrapTimeout("validate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	statusErr := &apiError{provider: "openai", status: resp.StatusCode, message: strings.TrimSpace(string(body))}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &models.InvalidCredentialError{Provider: models.ProviderOpenAI, Err: statusErr}
	}
	return statusErr
}

func (p *openAIProvider) ProviderID() string {
	return models.ProviderOpenAI
}

func (p *openAIProvider) DisplayName() string {
	return models.ProviderDisplayName(models.ProviderOpenAI)
}

func (p *openAIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// postJSON sends a request and decodes the response, mapping auth rejections
// and non-2xx statuses to typed errors.
func (p *openAIProvider) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return waitErr(ctx, err)
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(body))
		var envelope struct {
			Error *openAIError `json:"error"`
		}
		if jsonErr := json.Unmarshal(body, &envelope); jsonErr == nil && envelope.Error != nil {
			message = envelope.Error.Message
		}

		statusErr := &apiError{provider: "openai", status: resp.StatusCode, message: message}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &models.InvalidCredentialError{Provider: models.ProviderOpenAI, Err: statusErr}
		}
		return statusErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// waitErr prefers the context error over the limiter's wrapper so deadline
// expiry keeps its sentinel.
func waitErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
