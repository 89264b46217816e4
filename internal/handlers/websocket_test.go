package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	plog "github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/interfaces"
)

type wsEnv struct {
	*handlerEnv
	ws     *WebSocketHandler
	server *httptest.Server
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()

	env := newHandlerEnv(t)
	ws := NewWebSocketHandler(env.sessions, env.qa, env.events, common.GetLogger())

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	t.Cleanup(server.Close)

	return &wsEnv{handlerEnv: env, ws: ws, server: server}
}

func (env *wsEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads one message with a deadline so a missing message fails
// the test instead of hanging it.
func readEnvelope(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err, "expected a WebSocket message")

	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg.Type, msg.Payload
}

// readUntil skips interleaved broadcasts until a message of the wanted type
// arrives.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) json.RawMessage {
	t.Helper()

	for i := 0; i < 10; i++ {
		msgType, payload := readEnvelope(t, conn)
		if msgType == wantType {
			return payload
		}
	}
	t.Fatalf("no %q message after 10 reads", wantType)
	return nil
}

func payloadMap(t *testing.T, payload json.RawMessage) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &m))
	return m
}

func TestWebSocketInitialStatus(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)

	msgType, payload := readEnvelope(t, conn)
	require.Equal(t, "status", msgType)

	status := payloadMap(t, payload)
	assert.Equal(t, "online", status["status"])
	assert.NotEmpty(t, status["server_instance_id"])
	assert.EqualValues(t, 0, status["sessions"])

	assert.Equal(t, 1, env.ws.ClientCount())
}

func TestWebSocketClientDeregistersOnClose(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)
	readUntil(t, conn, "status")

	require.Equal(t, 1, env.ws.ClientCount())
	conn.Close()

	assert.Eventually(t, func() bool { return env.ws.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestWebSocketAsk(t *testing.T) {
	env := newWSEnv(t)
	sess := env.newReadySession(t)

	conn := env.dial(t)
	readUntil(t, conn, "status")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "ask",
		"payload": map[string]string{"session_id": sess.ID, "question": "What does the page say about alpha?"},
	}))

	answer := payloadMap(t, readUntil(t, conn, "answer"))
	assert.Equal(t, sess.ID, answer["session_id"])
	assert.Equal(t, true, answer["success"])
	assert.Equal(t, "The answer.", answer["answer"])

	sources, ok := answer["sources"].([]interface{})
	require.True(t, ok, "sources should be an array, payload: %v", answer)
	assert.Len(t, sources, 3)
	assert.NotContains(t, answer, "error")

	// The answer lands in the transcript even though it was asked over the
	// socket.
	assert.Len(t, sess.Messages(), 2)
}

func TestWebSocketAskUnknownSession(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)
	readUntil(t, conn, "status")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "ask",
		"payload": map[string]string{"session_id": "missing", "question": "anyone there?"},
	}))

	answer := payloadMap(t, readUntil(t, conn, "answer"))
	assert.Equal(t, false, answer["success"])
	assert.Equal(t, "Session not found", answer["error"])
}

func TestWebSocketAskInvalidPayload(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)
	readUntil(t, conn, "status")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ask","payload":"not an object"}`)))

	answer := payloadMap(t, readUntil(t, conn, "answer"))
	assert.Equal(t, false, answer["success"])
	assert.Equal(t, "Invalid ask payload", answer["error"])
}

func TestWebSocketPingPong(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)
	readUntil(t, conn, "status")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	pong := payloadMap(t, readUntil(t, conn, "pong"))
	assert.Contains(t, pong, "timestamp")
}

func TestWebSocketSurvivesMalformedFrames(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)
	readUntil(t, conn, "status")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	readUntil(t, conn, "pong")
	assert.Equal(t, 1, env.ws.ClientCount())
}

func TestWebSocketStatusBroadcastOnSessionEvents(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)
	readUntil(t, conn, "status")

	err := env.events.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventDocumentsLoaded,
		Payload: map[string]interface{}{
			"session_id":  "abc123",
			"chunk_count": 5,
		},
	})
	require.NoError(t, err)

	for {
		status := payloadMap(t, readUntil(t, conn, "status"))
		if status["event"] == nil {
			continue
		}
		assert.Equal(t, string(interfaces.EventDocumentsLoaded), status["event"])
		assert.Equal(t, "abc123", status["session_id"])
		assert.EqualValues(t, 5, status["chunk_count"])
		return
	}
}

func TestBroadcastLogs(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)
	readUntil(t, conn, "status")

	env.ws.BroadcastLogs([]LogEntry{
		{Timestamp: "12:00:00", Level: "INF", Message: "Index built"},
		{Timestamp: "12:00:01", Level: "WRN", Message: "Slow provider"},
	})

	var entries []LogEntry
	require.NoError(t, json.Unmarshal(readUntil(t, conn, "log_event"), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "Index built", entries[0].Message)
	assert.Equal(t, "WRN", entries[1].Level)
}

func TestLogStreamerDeliversBatches(t *testing.T) {
	env := newWSEnv(t)

	streamer := NewLogStreamer(env.ws, nil, common.GetLogger())
	streamer.Start()
	t.Cleanup(streamer.Stop)

	conn := env.dial(t)
	readUntil(t, conn, "status")

	streamer.Channel() <- []arbormodels.LogEvent{
		{Timestamp: time.Now(), Level: plog.InfoLevel, Message: "Documents processed"},
	}

	var entries []LogEntry
	require.NoError(t, json.Unmarshal(readUntil(t, conn, "log_event"), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "INF", entries[0].Level)
	assert.Equal(t, "Documents processed", entries[0].Message)
}

func TestLogStreamerFlushesPendingOnStop(t *testing.T) {
	env := newWSEnv(t)

	// An hour-long interval keeps the ticker and limiter quiet after the
	// first flush, so the second batch can only arrive via the Stop drain.
	config := &common.WebSocketConfig{MinLevel: "debug", LogInterval: "1h"}
	streamer := NewLogStreamer(env.ws, config, common.GetLogger())
	streamer.Start()

	conn := env.dial(t)
	readUntil(t, conn, "status")

	streamer.Channel() <- []arbormodels.LogEvent{
		{Timestamp: time.Now(), Level: plog.InfoLevel, Message: "first"},
	}
	readUntil(t, conn, "log_event")

	streamer.Channel() <- []arbormodels.LogEvent{
		{Timestamp: time.Now(), Level: plog.InfoLevel, Message: "second"},
	}
	time.Sleep(75 * time.Millisecond)
	streamer.Stop()

	var entries []LogEntry
	require.NoError(t, json.Unmarshal(readUntil(t, conn, "log_event"), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Message)
}

func TestLogStreamerConvert(t *testing.T) {
	env := newWSEnv(t)

	config := &common.WebSocketConfig{
		MinLevel:        "warn",
		ExcludePatterns: []string{"HTTP request"},
	}
	streamer := NewLogStreamer(env.ws, config, common.GetLogger())

	ts := time.Date(2026, 8, 25, 14, 30, 5, 0, time.UTC)
	entries := streamer.convert([]arbormodels.LogEvent{
		{Timestamp: ts, Level: plog.InfoLevel, Message: "below threshold"},
		{Timestamp: ts, Level: plog.ErrorLevel, Message: "HTTP request failed"},
		{Timestamp: ts, Level: plog.WarnLevel, Message: "Slow provider", Fields: map[string]interface{}{"elapsed": "2s"}},
	})

	require.Len(t, entries, 1)
	assert.Equal(t, "14:30:05", entries[0].Timestamp)
	assert.Equal(t, "WRN", entries[0].Level)
	assert.Equal(t, "Slow provider elapsed=2s", entries[0].Message)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  arbor.LogLevel
	}{
		{"debug", arbor.DebugLevel},
		{"info", arbor.InfoLevel},
		{"warn", arbor.WarnLevel},
		{"warning", arbor.WarnLevel},
		{"error", arbor.ErrorLevel},
		{"", arbor.InfoLevel},
		{"bogus", arbor.InfoLevel},
		{" WARN ", arbor.WarnLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.input), "input %q", tt.input)
	}
}

func TestConvertTo3Letter(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"info", "INF"},
		{"INFO", "INF"},
		{"warn", "WRN"},
		{"warning", "WRN"},
		{"error", "ERR"},
		{"debug", "DBG"},
		{"trace", "TRC"},
		{"wrn", "WRN"},
		{"mystery", "INF"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, convertTo3Letter(tt.input), "input %q", tt.input)
	}
}
