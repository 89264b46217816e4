package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/interfaces"
	"github.com/ternarybob/rogo/internal/models"
	"github.com/ternarybob/rogo/internal/services/qa"
	"github.com/ternarybob/rogo/internal/services/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every message in either direction.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// LogEntry is one formatted log line streamed to clients.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// WebSocketHandler maintains the set of connected clients, pushes session
// events and log batches to them, and answers questions asked over the
// socket.
type WebSocketHandler struct {
	sessions *session.Manager
	qa       *qa.Service
	events   interfaces.EventService
	logger   arbor.ILogger

	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex

	// serverInstanceID changes on every startup; clients use it to detect a
	// restart and drop stale session ids.
	serverInstanceID string
}

// NewWebSocketHandler creates the handler and subscribes it to session
// events. eventService may be nil, in which case only log streaming and
// socket questions work.
func NewWebSocketHandler(sessions *session.Manager, qaService *qa.Service, eventService interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		sessions:         sessions,
		qa:               qaService,
		events:           eventService,
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")

	if eventService != nil {
		h.subscribeToSessionEvents()
	}

	return h
}

// subscribeToSessionEvents forwards session lifecycle events to connected
// clients as status messages.
func (h *WebSocketHandler) subscribeToSessionEvents() {
	for _, eventType := range []interfaces.EventType{
		interfaces.EventDocumentsLoaded,
		interfaces.EventAnswerGenerated,
		interfaces.EventSessionReset,
	} {
		h.events.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			payload, ok := event.Payload.(map[string]interface{})
			if !ok {
				h.logger.Warn().Str("event_type", string(event.Type)).Msg("Invalid event payload type")
				return nil
			}

			status := make(map[string]interface{}, len(payload)+1)
			for k, v := range payload {
				status[k] = v
			}
			status["event"] = string(event.Type)

			h.Broadcast(WSMessage{Type: "status", Payload: status})
			return nil
		})
	}
}

// HandleWebSocket upgrades the connection, registers the client, and serves
// it until disconnect. Inbound ask messages are answered on this connection
// only; everything else from the client is ignored.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendStatus(conn)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}

		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn().Err(err).Msg("Invalid WebSocket message")
			continue
		}

		switch msg.Type {
		case "ask":
			// Answer in the background so a slow provider call does not stall
			// the read loop. Background context keeps the ask alive even when
			// the client drops mid-answer; the transcript still records it.
			go h.handleAsk(context.Background(), conn, msg.Payload)
		case "ping":
			h.sendTo(conn, WSMessage{Type: "pong", Payload: map[string]interface{}{"timestamp": time.Now()}})
		default:
			h.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown WebSocket message type")
		}
	}
}

// handleAsk answers a question over the socket. The response goes only to the
// asking connection; the status broadcast to everyone comes from the answer
// event.
func (h *WebSocketHandler) handleAsk(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) {
	var req struct {
		SessionID string `json:"session_id"`
		Question  string `json:"question"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		h.sendTo(conn, WSMessage{Type: "answer", Payload: map[string]interface{}{
			"success": false,
			"error":   "Invalid ask payload",
		}})
		return
	}

	sess, ok := h.sessions.Get(req.SessionID)
	if !ok {
		h.sendTo(conn, WSMessage{Type: "answer", Payload: map[string]interface{}{
			"session_id": req.SessionID,
			"success":    false,
			"error":      "Session not found",
		}})
		return
	}

	answer := h.qa.Ask(ctx, sess, req.Question)

	sources := answer.Sources
	if sources == nil {
		sources = []models.Source{}
	}

	payload := map[string]interface{}{
		"session_id": req.SessionID,
		"success":    answer.OK(),
		"answer":     answer.Text,
		"sources":    sources,
	}
	if answer.Err != nil {
		payload["error"] = answer.Err
	}

	h.sendTo(conn, WSMessage{Type: "answer", Payload: payload})
}

// sendStatus sends the initial status snapshot to a newly connected client.
func (h *WebSocketHandler) sendStatus(conn *websocket.Conn) {
	h.sendTo(conn, WSMessage{Type: "status", Payload: map[string]interface{}{
		"status":             "online",
		"server_instance_id": h.serverInstanceID,
		"sessions":           h.sessions.Count(),
		"timestamp":          time.Now(),
	}})
}

// sendTo writes one message to one client under its write mutex.
func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex == nil {
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
}

// Broadcast sends a message to every connected client. Connections are
// snapshotted under the read lock, then written to one at a time under each
// connection's own mutex.
func (h *WebSocketHandler) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message to client")
		}
	}
}

// BroadcastLogs pushes a batch of log lines to all clients. Nothing in here
// may log, not even on failure: the log line would feed back into the stream
// channel and produce another batch.
func (h *WebSocketHandler) BroadcastLogs(entries []LogEntry) {
	if len(entries) == 0 {
		return
	}

	data, err := json.Marshal(WSMessage{Type: "log_event", Payload: entries})
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
