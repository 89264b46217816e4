package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
	"github.com/ternarybob/rogo/internal/services/events"
	"github.com/ternarybob/rogo/internal/services/export"
	"github.com/ternarybob/rogo/internal/services/qa"
	"github.com/ternarybob/rogo/internal/services/session"
)

type fakeProvider struct {
	id           string
	generateText string
	generateErr  error
}

func (p *fakeProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (p *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (p *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.generateErr != nil {
		return "", p.generateErr
	}
	return p.generateText, nil
}

func (p *fakeProvider) Validate(ctx context.Context) error { return nil }
func (p *fakeProvider) ProviderID() string                 { return p.id }
func (p *fakeProvider) DisplayName() string                { return models.ProviderDisplayName(p.id) }
func (p *fakeProvider) Close() error                       { return nil }

type fakeFactory struct {
	providers map[string]*fakeProvider
	err       error
}

func (f *fakeFactory) Provider(ctx context.Context, cfg models.ProviderConfig) (interfaces.AIProvider, error) {
	if f.err != nil {
		return nil, f.err
	}
	id := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if id == "" {
		id = models.ProviderOpenAI
	}
	p, ok := f.providers[id]
	if !ok {
		return nil, &models.UnsupportedProviderError{Provider: id}
	}
	return p, nil
}

func (f *fakeFactory) Describe(cfg models.ProviderConfig) models.ProviderInfo {
	id := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if id == "" {
		id = models.ProviderOpenAI
	}
	return models.ProviderInfo{
		Provider:       id,
		DisplayName:    models.ProviderDisplayName(id),
		Model:          "model-" + id,
		EmbeddingModel: "embed-" + id,
	}
}

func (f *fakeFactory) Close() error { return nil }

type fakeFetcher struct {
	page *models.Page
	err  error

	mu       sync.Mutex
	calls    int
	lastURL  string
	lastOpts interfaces.FetchOptions
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string, opts interfaces.FetchOptions) (*models.Page, error) {
	f.mu.Lock()
	f.calls++
	f.lastURL = rawURL
	f.lastOpts = opts
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

type handlerEnv struct {
	cfg      *common.Config
	sessions *session.Manager
	qa       *qa.Service
	events   *events.Service
	fetcher  *fakeFetcher
	factory  *fakeFactory
	handler  *SessionHandler
}

// newHandlerEnv wires a session handler around fake providers and a fake
// fetcher. Real session, QA, event, and export services sit behind it.
func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	cfg := common.NewDefaultConfig()
	logger := common.GetLogger()

	factory := &fakeFactory{providers: map[string]*fakeProvider{
		models.ProviderOpenAI: {id: models.ProviderOpenAI, generateText: "The answer."},
		models.ProviderGemini: {id: models.ProviderGemini, generateText: "Gemini answer."},
	}}
	fetch := &fakeFetcher{page: fixturePage()}

	eventService := events.NewService(logger)
	t.Cleanup(func() { eventService.Close() })

	sessions := session.NewManager(cfg, logger)
	qaService := qa.NewService(factory, eventService, cfg, logger)
	exporter := export.NewService(logger)

	return &handlerEnv{
		cfg:      cfg,
		sessions: sessions,
		qa:       qaService,
		events:   eventService,
		fetcher:  fetch,
		factory:  factory,
		handler:  NewSessionHandler(sessions, qaService, fetch, exporter, logger),
	}
}

// newReadySession creates a session with small chunk settings, a configured
// provider, and the fixture page loaded, so questions retrieve three sources.
func (env *handlerEnv) newReadySession(t *testing.T) *session.Session {
	t.Helper()
	ctx := context.Background()

	sess, err := env.sessions.Create("", 300, 60)
	require.NoError(t, err)

	_, err = env.qa.ConfigureProvider(ctx, sess, models.ProviderConfig{Provider: models.ProviderOpenAI, Credential: "sk-test"})
	require.NoError(t, err)

	result, err := env.qa.ProcessDocuments(ctx, sess, fixturePage(), 0, -1)
	require.NoError(t, err)
	require.Equal(t, 5, result.Stats.TotalChunks)

	return sess
}

func para(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

// fixturePage splits into exactly five chunks at size 300 / overlap 60.
func fixturePage() *models.Page {
	paragraphs := []string{
		para("alpha", 45),
		para("beta", 32),
		para("gamma", 28),
		para("delta", 27),
		para("omega", 26),
	}
	text := strings.Join(paragraphs, "\n\n")
	return &models.Page{
		URL:           "https://example.com/docs",
		Title:         "Example Docs",
		Text:          text,
		ContentLength: utf8.RuneCountInString(text),
		StatusCode:    200,
		ContentType:   "text/html",
		FetchedAt:     time.Now(),
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "response body: %s", rec.Body.String())
	return body
}

func nested(t *testing.T, body map[string]interface{}, key string) map[string]interface{} {
	t.Helper()
	value, ok := body[key].(map[string]interface{})
	require.True(t, ok, "expected %q to be an object, body: %v", key, body)
	return value
}
