package qa

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
	"github.com/ternarybob/rogo/internal/services/session"
)

type fakeProvider struct {
	id           string
	generateText string
	generateErr  error
	embedErr     error
	queryErr     error
	panicOnGen   bool

	mu         sync.Mutex
	embedCalls int
	queryCalls int
	genCalls   int
	lastPrompt string
}

// All fake embeddings share one direction, so retrieval ranks every chunk
// equally and the stable sort preserves document order.
func (p *fakeProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.embedCalls++
	p.mu.Unlock()
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (p *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.queryCalls++
	p.mu.Unlock()
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return []float32{1, 0}, nil
}

func (p *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	p.genCalls++
	p.lastPrompt = prompt
	p.mu.Unlock()
	if p.panicOnGen {
		panic("provider exploded")
	}
	if p.generateErr != nil {
		return "", p.generateErr
	}
	return p.generateText, nil
}

func (p *fakeProvider) Validate(ctx context.Context) error { return nil }
func (p *fakeProvider) ProviderID() string                 { return p.id }
func (p *fakeProvider) DisplayName() string                { return models.ProviderDisplayName(p.id) }
func (p *fakeProvider) Close() error                       { return nil }

func (p *fakeProvider) prompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPrompt
}

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
	model := cfg.Model
	if model == "" {
		model = "model-" + id
	}
	embedding := cfg.EmbeddingModel
	if embedding == "" {
		embedding = "embed-" + id
	}
	return models.ProviderInfo{
		Provider:       id,
		DisplayName:    models.ProviderDisplayName(id),
		Model:          model,
		EmbeddingModel: embedding,
	}
}

func (f *fakeFactory) Close() error { return nil }

type recordingEvents struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recordingEvents) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return nil
}

func (r *recordingEvents) Publish(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return r.Publish(ctx, event)
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) count(eventType interfaces.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type testEnv struct {
	svc     *Service
	sess    *session.Session
	factory *fakeFactory
	events  *recordingEvents
	openai  *fakeProvider
	gemini  *fakeProvider
}

// newTestEnv builds a service around fake providers and a session with small
// chunk settings so short fixtures split into several chunks.
func newTestEnv(t *testing.T, mutate func(*common.Config)) *testEnv {
	t.Helper()

	cfg := common.NewDefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	openai := &fakeProvider{id: models.ProviderOpenAI, generateText: "The answer."}
	gemini := &fakeProvider{id: models.ProviderGemini, generateText: "Gemini answer."}
	factory := &fakeFactory{providers: map[string]*fakeProvider{
		models.ProviderOpenAI: openai,
		models.ProviderGemini: gemini,
	}}
	events := &recordingEvents{}

	mgr := session.NewManager(cfg, common.GetLogger())
	sess, err := mgr.Create("", 300, 60)
	require.NoError(t, err)

	return &testEnv{
		svc:     NewService(factory, events, cfg, common.GetLogger()),
		sess:    sess,
		factory: factory,
		events:  events,
		openai:  openai,
		gemini:  gemini,
	}
}

// para builds a paragraph of n repetitions of word separated by spaces.
func para(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

// fixturePage returns a page whose paragraphs each exceed the 60-character
// overlap and pairwise exceed the 300-character chunk size, so the splitter
// yields exactly one chunk per paragraph in document order.
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

func loadAndConfigure(t *testing.T, env *testEnv, providerID string) {
	t.Helper()
	ctx := context.Background()

	_, err := env.svc.ConfigureProvider(ctx, env.sess, models.ProviderConfig{Provider: providerID, Credential: "sk-test"})
	require.NoError(t, err)

	result, err := env.svc.ProcessDocuments(ctx, env.sess, fixturePage(), 0, -1)
	require.NoError(t, err)
	require.False(t, result.NoContent)
	require.Equal(t, 5, result.Stats.TotalChunks)
}

func TestConfigureProvider(t *testing.T) {
	env := newTestEnv(t, nil)

	info, err := env.svc.ConfigureProvider(context.Background(), env.sess, models.ProviderConfig{
		Provider:   "gemini",
		Credential: "AIza-test",
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini", info.Provider)
	assert.Equal(t, "Google Gemini", info.DisplayName)
	assert.True(t, info.Ready)

	assert.NotNil(t, env.sess.Provider())
	stored := env.sess.ProviderConfig()
	assert.Equal(t, "gemini", stored.Provider)
	assert.Equal(t, "embed-gemini", stored.EmbeddingModel)
	assert.Empty(t, stored.Credential)
}

func TestConfigureProviderFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.factory.err = &models.MissingCredentialError{Provider: "openai"}

	_, err := env.svc.ConfigureProvider(context.Background(), env.sess, models.ProviderConfig{Provider: "openai"})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindMissingCredential, models.KindOf(err))
	assert.Nil(t, env.sess.Provider())
}

func TestProcessDocuments(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.svc.ProcessDocuments(context.Background(), env.sess, fixturePage(), 0, -1)
	require.NoError(t, err)

	assert.False(t, result.NoContent)
	assert.Equal(t, 5, result.Stats.TotalChunks)
	assert.Equal(t, 300, result.Stats.ChunkSize)
	assert.Equal(t, 60, result.Stats.ChunkOverlap)
	assert.Greater(t, result.Stats.TotalCharacters, 0)

	assert.Len(t, env.sess.Documents(), 5)
	assert.Equal(t, models.SessionStateDocumentsLoaded, env.sess.State())
	assert.Nil(t, env.sess.Index())
	assert.Equal(t, 1, env.events.count(interfaces.EventDocumentsLoaded))
}

func TestProcessDocumentsOverridesChunkSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.svc.ProcessDocuments(context.Background(), env.sess, fixturePage(), 80, 10)
	require.NoError(t, err)

	assert.Equal(t, 80, result.Stats.ChunkSize)
	assert.Equal(t, 10, result.Stats.ChunkOverlap)
	assert.Greater(t, result.Stats.TotalChunks, 5)
}

func TestProcessDocumentsEmptyPage(t *testing.T) {
	env := newTestEnv(t, nil)

	page := &models.Page{URL: "https://example.com/blank", Text: " \n\t "}
	result, err := env.svc.ProcessDocuments(context.Background(), env.sess, page, 0, -1)
	require.NoError(t, err)

	assert.True(t, result.NoContent)
	assert.Zero(t, result.Stats.TotalChunks)
	assert.Empty(t, env.sess.Documents())
	assert.Equal(t, models.SessionStateEmpty, env.sess.State())
	assert.Equal(t, 0, env.events.count(interfaces.EventDocumentsLoaded))
}

func TestProcessDocumentsRejectsBadSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.svc.ProcessDocuments(context.Background(), env.sess, fixturePage(), 10, 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk overlap")
}

func TestAskEmptyQuestion(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")

	for _, query := range []string{"", "   ", "\n\t"} {
		answer := env.svc.Ask(context.Background(), env.sess, query)
		require.NotNil(t, answer)
		assert.Equal(t, "Please enter a question.", answer.Text)
		assert.True(t, answer.OK())
	}
	assert.Equal(t, 0, env.openai.genCalls)
	assert.Empty(t, env.sess.Messages())
}

func TestAskNotReady(t *testing.T) {
	env := newTestEnv(t, nil)

	// No provider and no documents.
	answer := env.svc.Ask(context.Background(), env.sess, "What is this?")
	require.NotNil(t, answer)
	assert.Equal(t, "Sorry, I'm not ready to answer questions yet. Please check your API key configuration.", answer.Text)
	require.NotNil(t, answer.Err)
	assert.Equal(t, models.ErrKindNotReady, answer.Err.Kind)
	assert.Equal(t, "Service not initialized", answer.Err.Message)

	// Provider configured but still no documents.
	_, err := env.svc.ConfigureProvider(context.Background(), env.sess, models.ProviderConfig{Provider: "openai", Credential: "sk-test"})
	require.NoError(t, err)

	answer = env.svc.Ask(context.Background(), env.sess, "What is this?")
	require.NotNil(t, answer.Err)
	assert.Equal(t, models.ErrKindNotReady, answer.Err.Kind)
}

func TestAskAnswersWithSources(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")

	answer := env.svc.Ask(context.Background(), env.sess, "What does alpha mean?")
	require.NotNil(t, answer)
	require.True(t, answer.OK(), "unexpected answer error: %+v", answer.Err)
	assert.Equal(t, "The answer.", answer.Text)

	// Tied similarities keep document order, so the first three chunks are
	// cited. The first paragraph is 269 characters and gets truncated.
	require.Len(t, answer.Sources, 3)
	first := answer.Sources[0].Content
	assert.True(t, strings.HasSuffix(first, "..."))
	assert.Equal(t, 203, utf8.RuneCountInString(first))
	assert.Equal(t, para("beta", 32), answer.Sources[1].Content)
	assert.Equal(t, para("gamma", 28), answer.Sources[2].Content)
	assert.Equal(t, "https://example.com/docs", answer.Sources[0].Metadata.URL)

	messages := env.sess.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "What does alpha mean?", messages[0].Content)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	assert.Equal(t, "The answer.", messages[1].Content)
	assert.Len(t, messages[1].Sources, 3)

	promptText := env.openai.prompt()
	assert.Contains(t, promptText, "User Question: What does alpha mean?")
	assert.Contains(t, promptText, "BotPenguin")
	assert.Contains(t, promptText, para("alpha", 45))

	assert.Equal(t, 1, env.events.count(interfaces.EventAnswerGenerated))
	assert.Equal(t, models.SessionStateIndexReady, env.sess.State())
}

func TestAskCapsSources(t *testing.T) {
	env := newTestEnv(t, func(cfg *common.Config) {
		cfg.Chat.TopK = 4
		cfg.Chat.MaxSources = 2
	})
	loadAndConfigure(t, env, "openai")

	answer := env.svc.Ask(context.Background(), env.sess, "Summarize the document.")
	require.True(t, answer.OK())
	assert.Len(t, answer.Sources, 2)
}

func TestAskReusesIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")
	ctx := context.Background()

	env.svc.Ask(ctx, env.sess, "First question?")
	env.svc.Ask(ctx, env.sess, "Second question?")

	assert.Equal(t, 1, env.openai.embedCalls)
	assert.Equal(t, 2, env.openai.queryCalls)
	assert.Equal(t, 2, env.openai.genCalls)
}

func TestAskRebuildsAfterProviderSwitch(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")
	ctx := context.Background()

	answer := env.svc.Ask(ctx, env.sess, "First question?")
	require.True(t, answer.OK())
	assert.Equal(t, 1, env.openai.embedCalls)

	_, err := env.svc.ConfigureProvider(ctx, env.sess, models.ProviderConfig{Provider: "gemini", Credential: "AIza-test"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateDocumentsLoaded, env.sess.State())

	answer = env.svc.Ask(ctx, env.sess, "Second question?")
	require.True(t, answer.OK())
	assert.Equal(t, "Gemini answer.", answer.Text)
	assert.Equal(t, 1, env.gemini.embedCalls)
	assert.Equal(t, 1, env.openai.embedCalls)
}

func TestAskRebuildsAfterNewDocuments(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")
	ctx := context.Background()

	env.svc.Ask(ctx, env.sess, "First question?")

	_, err := env.svc.ProcessDocuments(ctx, env.sess, fixturePage(), 0, -1)
	require.NoError(t, err)

	env.svc.Ask(ctx, env.sess, "Second question?")
	assert.Equal(t, 2, env.openai.embedCalls)
}

func TestAskIndexBuildFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")
	env.openai.embedErr = errors.New("embeddings unavailable")

	answer := env.svc.Ask(context.Background(), env.sess, "What does alpha mean?")
	require.NotNil(t, answer.Err)
	assert.Equal(t, "I'm sorry, I encountered an error while processing your question. Please try again.", answer.Text)
	assert.Equal(t, models.ErrKindRetrieval, answer.Err.Kind)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, env.sess.Messages())
}

func TestAskRetrievalFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")
	env.openai.queryErr = errors.New("query embedding failed")

	answer := env.svc.Ask(context.Background(), env.sess, "What does alpha mean?")
	require.NotNil(t, answer.Err)
	assert.Equal(t, models.ErrKindRetrieval, answer.Err.Kind)
	assert.Equal(t, 0, env.events.count(interfaces.EventAnswerGenerated))
}

func TestAskTimeoutClassified(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")
	env.openai.queryErr = &models.TimeoutError{Op: "embed", Err: context.DeadlineExceeded}

	answer := env.svc.Ask(context.Background(), env.sess, "What does alpha mean?")
	require.NotNil(t, answer.Err)
	assert.Equal(t, models.ErrKindTimeout, answer.Err.Kind)
}

func TestAskGenerationFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")
	env.openai.generateErr = errors.New("rate limited")

	answer := env.svc.Ask(context.Background(), env.sess, "What does alpha mean?")
	require.NotNil(t, answer.Err)
	assert.Equal(t, "I'm sorry, I encountered an error while processing your question. Please try again.", answer.Text)
	assert.Equal(t, models.ErrKindGeneration, answer.Err.Kind)
	assert.Contains(t, answer.Err.Message, "rate limited")
	assert.Empty(t, env.sess.Messages())
}

func TestAskEmptyGeneration(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")
	env.openai.generateText = "  \n"

	answer := env.svc.Ask(context.Background(), env.sess, "What does alpha mean?")
	require.True(t, answer.OK())
	assert.Equal(t, "I'm sorry, I couldn't generate a response.", answer.Text)
	assert.Len(t, answer.Sources, 3)

	messages := env.sess.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "I'm sorry, I couldn't generate a response.", messages[1].Content)
}

func TestAskRecoversFromPanic(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")
	env.openai.panicOnGen = true

	answer := env.svc.Ask(context.Background(), env.sess, "What does alpha mean?")
	require.NotNil(t, answer)
	require.NotNil(t, answer.Err)
	assert.Equal(t, "I'm sorry, I encountered an error while processing your question. Please try again.", answer.Text)
	assert.Equal(t, models.ErrKindUnknown, answer.Err.Kind)
	assert.Contains(t, answer.Err.Message, "panic")
}

func TestReset(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")
	ctx := context.Background()

	env.svc.Ask(ctx, env.sess, "What does alpha mean?")
	require.NotEmpty(t, env.sess.Messages())

	env.svc.Reset(ctx, env.sess)

	assert.Empty(t, env.sess.Messages())
	assert.Empty(t, env.sess.Documents())
	assert.Equal(t, models.SessionStateEmpty, env.sess.State())
	assert.NotNil(t, env.sess.Provider())
	assert.Equal(t, 1, env.events.count(interfaces.EventSessionReset))
}

func TestProviderInfo(t *testing.T) {
	env := newTestEnv(t, nil)

	info := env.svc.ProviderInfo(env.sess)
	assert.False(t, info.Ready)
	assert.Equal(t, "openai", info.Provider)

	_, err := env.svc.ConfigureProvider(context.Background(), env.sess, models.ProviderConfig{Provider: "gemini", Credential: "AIza-test"})
	require.NoError(t, err)

	info = env.svc.ProviderInfo(env.sess)
	assert.True(t, info.Ready)
	assert.Equal(t, "gemini", info.Provider)
	assert.Equal(t, "Google Gemini", info.DisplayName)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, nil)
	loadAndConfigure(t, env, "openai")

	stats := env.svc.Stats(env.sess)
	require.NotNil(t, stats)
	assert.Equal(t, 5, stats.TotalChunks)
}

func TestTruncateContent(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		runes int
	}{
		{name: "short text unchanged", text: "hello", want: "hello", runes: 5},
		{name: "exactly at limit unchanged", text: strings.Repeat("a", 200), want: strings.Repeat("a", 200), runes: 200},
		{name: "one over limit truncated", text: strings.Repeat("a", 201), want: strings.Repeat("a", 200) + "...", runes: 203},
		{name: "multibyte counts runes", text: strings.Repeat("é", 250), want: strings.Repeat("é", 200) + "...", runes: 203},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateContent(tt.text, sourcePreviewLength)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.runes, utf8.RuneCountInString(got))
			assert.True(t, utf8.ValidString(got))
		})
	}
}
