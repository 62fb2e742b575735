package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/elvecinito/vecinito-server/internal/agent"
	"github.com/elvecinito/vecinito-server/internal/coalesce"
	"github.com/elvecinito/vecinito-server/internal/identity"
)

// WebSocketHandler handles WebSocket-based chat sessions. It carries the same
// semantics as POST /chat, plus visto/escribiendo status events pushed while
// a coalesced reply is pending.
type WebSocketHandler struct {
	coord          *agent.Coordinator
	buffer         *coalesce.Buffer
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates a new WebSocket chat handler. buffer may be nil
// to answer each message immediately.
func NewWebSocketHandler(coord *agent.Coordinator, buffer *coalesce.Buffer, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		coord:          coord,
		buffer:         buffer,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// wsMessage represents an incoming WebSocket message.
type wsMessage struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt,omitempty"`
	Agent  string `json:"agent,omitempty"`
}

// wsEvent represents an outgoing WebSocket message.
type wsEvent struct {
	Type     string   `json:"type"`
	Response string   `json:"response,omitempty"`
	Images   []string `json:"images,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// wsConn serializes writes; replies for coalesced messages arrive from a
// separate goroutine than the read loop's acknowledgements.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeEvent(ev wsEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(context.Background(), websocket.MessageText, data)
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("WebSocket chat connection", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := &wsConn{conn: ws}
	var wg sync.WaitGroup
	h.readLoop(ctx, ws, conn, userID, &wg)
	wg.Wait()
	slog.Info("WebSocket chat session ended", "user_id", userID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, conn *wsConn, userID string, wg *sync.WaitGroup) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			// Bare text is treated as a chat prompt.
			msg = wsMessage{Type: "chat", Prompt: string(message)}
		}

		switch msg.Type {
		case "chat":
			if strings.TrimSpace(msg.Prompt) == "" {
				if err := conn.writeEvent(wsEvent{Type: "error", Error: msgMissingFields}); err != nil {
					slog.Debug("Failed to send validation error", "error", err)
				}
				continue
			}
			h.handleChat(ctx, conn, userID, msg, wg)
		case "ping":
			if err := conn.writeEvent(wsEvent{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		}
	}
}

// handleChat acknowledges the message and delivers the reply. With coalescing
// enabled the reply arrives asynchronously once the user goes quiet; a
// superseded outcome is dropped because the newer message owns the reply.
func (h *WebSocketHandler) handleChat(ctx context.Context, conn *wsConn, userID string, msg wsMessage, wg *sync.WaitGroup) {
	if err := conn.writeEvent(wsEvent{Type: "visto"}); err != nil {
		slog.Debug("Failed to send visto", "error", err)
	}
	if err := conn.writeEvent(wsEvent{Type: "escribiendo"}); err != nil {
		slog.Debug("Failed to send escribiendo", "error", err)
	}

	if h.buffer == nil {
		reply, err := h.coord.HandleMessage(ctx, userID, msg.Prompt, msg.Agent)
		h.deliver(conn, userID, msg.Agent, reply, err)
		return
	}

	outcome := h.buffer.Submit(userID, msg.Prompt, msg.Agent)
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case out := <-outcome:
			if out.Superseded {
				return
			}
			h.deliver(conn, userID, msg.Agent, out.Reply, out.Err)
		}
	}()
}

func (h *WebSocketHandler) deliver(conn *wsConn, userID, agentID string, reply agent.Reply, err error) {
	if err != nil {
		slog.Error("WebSocket chat failed", "user_id", userID, "error", err)
		if writeErr := conn.writeEvent(wsEvent{Type: "error", Error: chatErrorMessage(h.coord, agentID, err)}); writeErr != nil {
			slog.Debug("Failed to send chat error", "error", writeErr)
		}
		return
	}
	ev := wsEvent{Type: "respuesta", Response: reply.Response, Images: nonNil(reply.Images)}
	if writeErr := conn.writeEvent(ev); writeErr != nil {
		slog.Debug("Failed to send reply", "error", writeErr, "user_id", userID)
	}
}
