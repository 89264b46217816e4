// Package qa orchestrates the question answering pipeline: provider setup,
// document processing, index lifecycle, retrieval, and answer generation.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
	"github.com/ternarybob/rogo/internal/services/chunker"
	"github.com/ternarybob/rogo/internal/services/index"
	"github.com/ternarybob/rogo/internal/services/prompt"
	"github.com/ternarybob/rogo/internal/services/session"
)

// User-facing fallback texts. Handlers return these verbatim, so answers stay
// presentable even when the pipeline fails.
const (
	msgEmptyQuestion = "Please enter a question."
	msgNotReady      = "Sorry, I'm not ready to answer questions yet. Please check your API key configuration."
	msgPipelineError = "I'm sorry, I encountered an error while processing your question. Please try again."
	msgEmptyResponse = "I'm sorry, I couldn't generate a response."
)

// sourcePreviewLength is the display cap for cited chunk content, in characters.
const sourcePreviewLength = 200

// ProcessResult reports the outcome of loading a document into a session.
// NoContent is set when the page text was empty after cleanup; the session
// still records the page but has nothing to answer from.
type ProcessResult struct {
	Stats     models.ProcessingStats `json:"stats"`
	NoContent bool                   `json:"no_content,omitempty"`
}

// Service coordinates providers, sessions, and the retrieval pipeline.
type Service struct {
	factory interfaces.ProviderFactory
	events  interfaces.EventService
	config  *common.Config
	logger  arbor.ILogger
}

// NewService creates the QA orchestrator. The event service may be nil when
// nothing subscribes (the MCP binary runs without one).
func NewService(factory interfaces.ProviderFactory, events interfaces.EventService, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		factory: factory,
		events:  events,
		config:  config,
		logger:  logger,
	}
}

// ConfigureProvider builds a provider for the selection and attaches it to
// the session. The stored config carries the effective model names but no
// credentials. Any existing index is marked stale so the next question
// re-embeds with the new provider.
func (s *Service) ConfigureProvider(ctx context.Context, sess *session.Session, selection models.ProviderConfig) (models.ProviderInfo, error) {
	provider, err := s.factory.Provider(ctx, selection)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("session_id", sess.ID).
			Str("provider", selection.Provider).
			Msg("Provider configuration failed")
		return models.ProviderInfo{}, err
	}

	info := s.factory.Describe(selection)
	stored := models.ProviderConfig{
		Provider:       info.Provider,
		Model:          info.Model,
		EmbeddingModel: info.EmbeddingModel,
		Temperature:    selection.Temperature,
	}
	sess.SetProvider(provider, stored)

	s.logger.Info().
		Str("session_id", sess.ID).
		Str("provider", info.Provider).
		Str("model", info.Model).
		Msg("Provider configured")

	info.Ready = true
	return info, nil
}

// ProcessDocuments splits the page text and stores the chunks on the session,
// invalidating any existing index. Chunk settings fall back to the session's
// when the arguments are not positive. Empty page text is reported through
// NoContent rather than an error so callers can warn instead of fail.
func (s *Service) ProcessDocuments(ctx context.Context, sess *session.Session, page *models.Page, chunkSize, chunkOverlap int) (*ProcessResult, error) {
	sessSize, sessOverlap := sess.ChunkSettings()
	if chunkSize <= 0 {
		chunkSize = sessSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = sessOverlap
	}

	splitter, err := chunker.NewSplitter(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}

	// Serialize with question handling so an in-flight ask never races a
	// corpus swap.
	sess.AskMu.Lock()
	defer sess.AskMu.Unlock()

	chunks, err := splitter.ChunkDocument(page.Text, page.Metadata())
	if err != nil {
		if errors.Is(err, chunker.ErrEmptyInput) {
			s.logger.Warn().
				Str("session_id", sess.ID).
				Str("url", page.URL).
				Msg("Page contains no extractable text")
			stats := models.NewProcessingStats(nil, chunkSize, chunkOverlap)
			sess.SetDocuments(page, nil, stats)
			return &ProcessResult{Stats: stats, NoContent: true}, nil
		}
		return nil, err
	}

	stats := models.NewProcessingStats(chunks, chunkSize, chunkOverlap)
	sess.SetDocuments(page, chunks, stats)

	s.logger.Info().
		Str("session_id", sess.ID).
		Str("url", page.URL).
		Int("chunks", stats.TotalChunks).
		Int("characters", stats.TotalCharacters).
		Msg("Documents processed")

	s.publish(ctx, interfaces.EventDocumentsLoaded, map[string]interface{}{
		"session_id": sess.ID,
		"url":        page.URL,
		"chunks":     stats.TotalChunks,
		"timestamp":  time.Now(),
	})

	return &ProcessResult{Stats: stats}, nil
}

// Ask answers a question against the session's documents. It never returns
// an error: failures come back as an Answer with user-presentable text and a
// classified Err. Panics in provider SDKs are contained here.
func (s *Service) Ask(ctx context.Context, sess *session.Session, query string) (answer *models.Answer) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("session_id", sess.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic while answering")
			answer = &models.Answer{
				Text: msgPipelineError,
				Err:  &models.AnswerError{Kind: models.ErrKindUnknown, Message: fmt.Sprintf("panic: %v", r)},
			}
		}
	}()

	question := strings.TrimSpace(query)
	if question == "" {
		return &models.Answer{Text: msgEmptyQuestion}
	}

	if !s.IsReady(sess) {
		return &models.Answer{
			Text: msgNotReady,
			Err:  &models.AnswerError{Kind: models.ErrKindNotReady, Message: "Service not initialized"},
		}
	}

	// One question at a time per session: the rebuild check and the
	// retrieve+generate pipeline must see a consistent corpus.
	sess.AskMu.Lock()
	defer sess.AskMu.Unlock()

	provider := sess.Provider()
	start := time.Now()

	ix, err := s.ensureIndex(ctx, sess, provider)
	if err != nil {
		return s.failureAnswer(sess, err)
	}

	topK := s.config.Chat.TopK
	if topK <= 0 {
		topK = 3
	}

	chunks, err := ix.Retrieve(ctx, question, provider, topK)
	if err != nil {
		return s.failureAnswer(sess, err)
	}

	promptText := prompt.Assemble(chunks, question, sess.Persona(), provider.ProviderID())

	text, err := provider.Generate(ctx, promptText)
	if err != nil {
		return s.failureAnswer(sess, &models.GenerationError{Err: err})
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = msgEmptyResponse
	}

	sources := buildSources(chunks, s.config.Chat.MaxSources)
	answer = &models.Answer{Text: text, Sources: sources}

	now := time.Now()
	sess.AppendMessage(models.ChatMessage{
		ID:        common.NewMessageID(),
		Role:      models.RoleUser,
		Content:   question,
		CreatedAt: now,
	})
	sess.AppendMessage(models.ChatMessage{
		ID:        common.NewMessageID(),
		Role:      models.RoleAssistant,
		Content:   answer.Text,
		Sources:   sources,
		CreatedAt: now,
	})

	s.logger.Info().
		Str("session_id", sess.ID).
		Str("provider", provider.ProviderID()).
		Int("sources", len(sources)).
		Dur("duration", time.Since(start)).
		Msg("Question answered")

	s.publish(ctx, interfaces.EventAnswerGenerated, map[string]interface{}{
		"session_id": sess.ID,
		"provider":   provider.ProviderID(),
		"sources":    len(sources),
		"timestamp":  time.Now(),
	})

	return answer
}

// Reset clears the session's documents, index, and transcript. The provider
// configuration survives so the next page load can reuse it.
func (s *Service) Reset(ctx context.Context, sess *session.Session) {
	sess.AskMu.Lock()
	sess.Reset()
	sess.AskMu.Unlock()

	s.logger.Info().Str("session_id", sess.ID).Msg("Session reset")

	s.publish(ctx, interfaces.EventSessionReset, map[string]interface{}{
		"session_id": sess.ID,
		"timestamp":  time.Now(),
	})
}

// IsReady reports whether the session can answer questions: a provider is
// attached and documents have been processed.
func (s *Service) IsReady(sess *session.Session) bool {
	return sess.Provider() != nil && len(sess.Documents()) > 0
}

// ProviderInfo returns the redacted provider summary for the session.
// Sessions without a configured provider report the application default
// with Ready false.
func (s *Service) ProviderInfo(sess *session.Session) models.ProviderInfo {
	cfg := sess.ProviderConfig()
	info := s.factory.Describe(cfg)
	info.Ready = sess.Provider() != nil
	return info
}

// Stats returns the processing stats from the session's last document load.
func (s *Service) Stats(sess *session.Session) *models.ProcessingStats {
	stats := sess.Stats()
	return &stats
}

// ensureIndex returns a current vector index for the session, rebuilding when
// none exists, the documents changed, or the provider changed since the last
// build. Callers hold AskMu, so at most one rebuild runs per session.
func (s *Service) ensureIndex(ctx context.Context, sess *session.Session, provider interfaces.AIProvider) (*index.VectorIndex, error) {
	tag := providerTag(provider, sess.ProviderConfig())

	ix := sess.Index()
	if ix != nil && !ix.Stale() && ix.ProviderTag() == tag {
		return ix, nil
	}

	start := time.Now()
	rebuilt, err := index.Build(ctx, sess.Documents(), provider, tag)
	if err != nil {
		return nil, err
	}
	sess.SetIndex(rebuilt)

	s.logger.Info().
		Str("session_id", sess.ID).
		Str("provider_tag", tag).
		Int("vectors", rebuilt.Len()).
		Dur("duration", time.Since(start)).
		Msg("Vector index built")

	return rebuilt, nil
}

// failureAnswer logs a pipeline failure and wraps it in the generic
// user-facing error answer.
func (s *Service) failureAnswer(sess *session.Session, err error) *models.Answer {
	kind := models.KindOf(err)
	s.logger.Error().
		Err(err).
		Str("session_id", sess.ID).
		Str("kind", string(kind)).
		Msg("Failed to answer question")

	return &models.Answer{
		Text: msgPipelineError,
		Err:  &models.AnswerError{Kind: kind, Message: err.Error()},
	}
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Event publish failed")
	}
}

// providerTag identifies the embedding space an index was built in. A tag
// mismatch on ask means the provider or embedding model changed, so cached
// vectors cannot be compared against new query embeddings.
func providerTag(provider interfaces.AIProvider, cfg models.ProviderConfig) string {
	return provider.ProviderID() + ":" + cfg.EmbeddingModel
}

// buildSources converts retrieved chunks, in rank order, into displayable
// citations. Content is cut to sourcePreviewLength characters.
func buildSources(chunks []models.Chunk, maxSources int) []models.Source {
	if maxSources <= 0 {
		maxSources = 3
	}
	if len(chunks) > maxSources {
		chunks = chunks[:maxSources]
	}

	sources := make([]models.Source, len(chunks))
	for i, c := range chunks {
		sources[i] = models.Source{
			Content:  truncateContent(c.Content, sourcePreviewLength),
			Metadata: c.Metadata,
		}
	}
	return sources
}

// truncateContent shortens text to limit characters, appending "..." only
// when something was cut. Counts runes so multibyte text never splits.
func truncateContent(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
