// Package session holds per-conversation state: the selected provider, the
// processed document set, the vector index built over it, and the message
// log. Sessions are in-memory only and swept after an idle TTL.
package session

import (
	"sync"
	"time"

	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
	"github.com/ternarybob/rogo/internal/services/index"
)

// Session owns the state of one chat conversation. ID and CreatedAt are
// immutable; everything else is guarded by an internal RWMutex. AskMu
// serializes question handling so concurrent asks on the same session cannot
// race an index rebuild.
type Session struct {
	ID        string
	CreatedAt time.Time

	// AskMu is held across index rebuild, retrieval, and generation for one
	// question. Snapshot reads do not need it.
	AskMu sync.Mutex

	mu           sync.RWMutex
	provider     interfaces.AIProvider
	providerCfg  models.ProviderConfig
	persona      string
	chunkSize    int
	chunkOverlap int
	page         *models.Page
	chunks       []models.Chunk
	stats        models.ProcessingStats
	idx          *index.VectorIndex
	messages     []models.ChatMessage
	lastActiveAt time.Time
}

func newSession(id, persona string, chunkSize, chunkOverlap int) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		persona:      persona,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		lastActiveAt: now,
	}
}

// State derives the lifecycle position from what the session holds. A stale
// index demotes the session back to documents_loaded until the rebuild.
func (s *Session) State() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 {
		return models.SessionStateEmpty
	}
	if s.idx == nil || s.idx.Stale() {
		return models.SessionStateDocumentsLoaded
	}
	return models.SessionStateIndexReady
}

// SetProvider swaps the AI provider. An existing index was embedded by the
// previous provider, so it is marked stale for rebuild on the next question.
func (s *Session) SetProvider(provider interfaces.AIProvider, cfg models.ProviderConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.provider = provider
	s.providerCfg = cfg
	if s.idx != nil {
		s.idx.MarkStale()
	}
	s.lastActiveAt = time.Now()
}

// Provider returns the attached provider, or nil before one is configured.
func (s *Session) Provider() interfaces.AIProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// ProviderConfig returns the selection the provider was built from.
func (s *Session) ProviderConfig() models.ProviderConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.providerCfg
}

// SetDocuments replaces the processed document set. Any previous index
// belongs to the old documents and is dropped.
func (s *Session) SetDocuments(page *models.Page, chunks []models.Chunk, stats models.ProcessingStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.page = page
	s.chunks = chunks
	s.stats = stats
	s.idx = nil
	s.lastActiveAt = time.Now()
}

// Documents returns the session's chunks. Callers must not mutate them.
func (s *Session) Documents() []models.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks
}

// Page returns the source page the documents were split from.
func (s *Session) Page() *models.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page
}

// Stats returns the processing stats recorded with the current documents.
func (s *Session) Stats() models.ProcessingStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// SetIndex installs a freshly built index.
func (s *Session) SetIndex(ix *index.VectorIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx = ix
	s.lastActiveAt = time.Now()
}

// Index returns the current index, which may be nil or stale.
func (s *Session) Index() *index.VectorIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

// Persona returns the assistant persona used in prompts.
func (s *Session) Persona() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persona
}

// ChunkSettings returns the split parameters fixed at session creation.
func (s *Session) ChunkSettings() (size, overlap int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunkSize, s.chunkOverlap
}

// AppendMessage adds a transcript entry and bumps activity.
func (s *Session) AppendMessage(msg models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.lastActiveAt = time.Now()
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Reset returns the session to the empty state. The provider and persona
// survive so the user can load a new URL without reconfiguring.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.page = nil
	s.chunks = nil
	s.stats = models.ProcessingStats{}
	s.idx = nil
	s.messages = nil
	s.lastActiveAt = time.Now()
}

// Touch bumps the idle timer without other changes.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

// LastActiveAt returns the time of the most recent activity.
func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}

// Info returns the API-facing summary.
func (s *Session) Info() models.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := models.SessionInfo{
		ID:           s.ID,
		Provider:     s.providerCfg.Provider,
		ChunkCount:   len(s.chunks),
		MessageCount: len(s.messages),
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.lastActiveAt,
	}
	if s.page != nil {
		info.DocumentURL = s.page.URL
	}

	switch {
	case len(s.chunks) == 0:
		info.State = models.SessionStateEmpty
	case s.idx == nil || s.idx.Stale():
		info.State = models.SessionStateDocumentsLoaded
	default:
		info.State = models.SessionStateIndexReady
	}

	return info
}
