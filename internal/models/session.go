package models

import "time"

// SessionState represents the lifecycle position of a chat session
type SessionState string

const (
	// SessionStateEmpty means no documents have been processed yet.
	SessionStateEmpty SessionState = "empty"
	// SessionStateDocumentsLoaded means chunks exist but no usable index.
	SessionStateDocumentsLoaded SessionState = "documents_loaded"
	// SessionStateIndexReady means the vector index is built and current.
	SessionStateIndexReady SessionState = "index_ready"
)

// Message roles stored in the session transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one transcript entry. Assistant messages carry the
// sources that backed the answer; user messages leave Sources nil.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionInfo is the API-facing summary of a session.
type SessionInfo struct {
	ID           string       `json:"id"`
	State        SessionState `json:"state"`
	Provider     string       `json:"provider"`
	DocumentURL  string       `json:"document_url,omitempty"`
	ChunkCount   int          `json:"chunk_count"`
	MessageCount int          `json:"message_count"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActiveAt time.Time    `json:"last_active_at"`
}
