package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique session ID with the "sess_" prefix
func NewSessionID() string {
	return "sess_" + uuid.New().String()
}

// NewMessageID generates a unique message ID with the "msg_" prefix
func NewMessageID() string {
	return "msg_" + uuid.New().String()
}
