package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/common"
)

// Manager is the in-memory session registry.
type Manager struct {
	config   *common.Config
	logger   arbor.ILogger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session registry.
func NewManager(config *common.Config, logger arbor.ILogger) *Manager {
	return &Manager{
		config:   config,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session. Empty persona and non-positive chunk
// settings fall back to the configured defaults; an overlap that is not
// smaller than the size is rejected.
func (m *Manager) Create(persona string, chunkSize, chunkOverlap int) (*Session, error) {
	if persona == "" {
		persona = m.config.Chat.Persona
	}
	if chunkSize <= 0 {
		chunkSize = m.config.Chunking.Size
	}
	if chunkOverlap < 0 {
		chunkOverlap = m.config.Chunking.Overlap
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", chunkOverlap, chunkSize)
	}

	sess := newSession(common.NewSessionID(), persona, chunkSize, chunkOverlap)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Info().
		Str("session_id", sess.ID).
		Str("persona", persona).
		Int("chunk_size", chunkSize).
		Int("chunk_overlap", chunkOverlap).
		Msg("Session created")

	return sess, nil
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Remove deletes a session and reports whether it existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)

	m.logger.Info().Str("session_id", id).Msg("Session removed")
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns all live sessions in unspecified order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// SweepIdle removes sessions idle longer than ttl and returns the count.
// The scheduler invokes this on the configured cadence.
func (m *Manager) SweepIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, sess := range m.sessions {
		if sess.LastActiveAt().Before(cutoff) {
			delete(m.sessions, id)
			removed++
			m.logger.Info().
				Str("session_id", id).
				Dur("ttl", ttl).
				Msg("Swept idle session")
		}
	}

	return removed
}
