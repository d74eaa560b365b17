package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"memoire/internal/domain"
)

// WebSocket message types.
const (
	TypeAgent   = "agent"
	TypeWorking = "working"
	TypeDone    = "done"
	TypePing    = "ping"
	TypePong    = "pong"
	TypeError   = "error"
)

// WSMessage is the JSON message protocol for the WebSocket gateway.
// Example: {"type": "agent", "content": "Ajoute une tâche : relire le chapitre 2", "id": "42"}
// Replies to "agent" carry the response message in Content plus the actions taken.
type WSMessage struct {
	Type     string                        `json:"type"`
	Content  string                        `json:"content,omitempty"`
	ID       string                        `json:"id,omitempty"` // echoed so clients can correlate replies
	Actions  []domain.ToolInvocationResult `json:"actions,omitempty"`
	Degraded bool                          `json:"degraded,omitempty"`
}

// jsonMarshal is used when encoding WSMessage; tests may replace it to force Marshal errors.
// Access is protected by jsonMarshalMu for race-safe test swaps.
var (
	jsonMarshalMu sync.RWMutex
	jsonMarshal   = json.Marshal
)

// Default upgrader for WebSocket connections.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request to WebSocket and runs a read loop, responding on the same connection.
// An "agent" message is processed by a; the reply is framed by "working" and "done" messages
// carrying the same id. "ping" is answered with "pong"; other types get an error reply.
// Only GET is accepted for the WebSocket handshake.
func HandleWS(w http.ResponseWriter, r *http.Request, a Agent, logger *slog.Logger) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var in WSMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			writeWSMessage(conn, &writeMu, &WSMessage{Type: TypeError, Content: "invalid JSON"})
			continue
		}

		switch in.Type {
		case TypePing:
			writeWSMessage(conn, &writeMu, &WSMessage{Type: TypePong, ID: in.ID})
		case TypeAgent:
			if strings.TrimSpace(in.Content) == "" {
				writeWSMessage(conn, &writeMu, &WSMessage{Type: TypeError, ID: in.ID, Content: "empty request"})
				continue
			}
			writeWSMessage(conn, &writeMu, &WSMessage{Type: TypeWorking, ID: in.ID})
			resp := a.ProcessUserRequest(r.Context(), domain.AgentRequest{UserRequest: in.Content})
			writeWSMessage(conn, &writeMu, &WSMessage{
				Type:     TypeAgent,
				ID:       in.ID,
				Content:  resp.ResponseMessage,
				Actions:  resp.ActionsTaken,
				Degraded: resp.Degraded,
			})
			writeWSMessage(conn, &writeMu, &WSMessage{Type: TypeDone, ID: in.ID})
		default:
			writeWSMessage(conn, &writeMu, &WSMessage{Type: TypeError, ID: in.ID, Content: "unsupported type: " + in.Type})
		}
	}
}

func writeWSMessage(conn *websocket.Conn, mu *sync.Mutex, msg *WSMessage) {
	jsonMarshalMu.RLock()
	marshal := jsonMarshal
	jsonMarshalMu.RUnlock()
	data, err := marshal(msg)
	if err != nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, data)
}
