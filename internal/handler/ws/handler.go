package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nimbuschat/backend/internal/session"
	authService "github.com/nimbuschat/backend/internal/service/auth"
	chatService "github.com/nimbuschat/backend/internal/service/chat"
	wsconn "github.com/nimbuschat/backend/internal/ws"
)

const readWait = 60 * time.Second

// noTokenSentinel lets a client connect without credentials in a debug
// capacity; the handshake acknowledgment is flagged so the client can warn.
const noTokenSentinel = "no-token"

// Handler is the websocket chat gateway: it authenticates the handshake,
// binds connections to logical users and feeds inbound messages into the
// push-stream pipeline.
type Handler struct {
	authSvc  *authService.Service
	chatSvc  *chatService.Service
	sessions *session.Directory
	upgrader websocket.Upgrader
}

// New creates the gateway.
func New(authSvc *authService.Service, chatSvc *chatService.Service, sessions *session.Directory) *Handler {
	return &Handler{
		authSvc:  authSvc,
		chatSvc:  chatSvc,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleWebSocket)
}

type joinPayload struct {
	UserID string `json:"userId"`
}

type messagePayload struct {
	Message string `json:"message"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := handshakeToken(r)

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	conn := wsconn.NewConn(sock)
	defer func() {
		h.sessions.Leave(conn)
		conn.Close()
	}()

	debugMode := token == "" || token == noTokenSentinel
	if debugMode {
		log.Printf("[ws] client %s connected without valid token", conn.ID())
	} else {
		if _, err := h.authSvc.Validate(token); err != nil {
			h.sendError(conn, "Invalid authentication token")
			// give the write pump a moment to flush the frame before the
			// deferred close tears the socket down
			time.Sleep(100 * time.Millisecond)
			return
		}
	}

	h.sendConnected(conn, debugMode)

	sock.SetReadDeadline(time.Now().Add(readWait))
	sock.SetPongHandler(func(string) error {
		sock.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	ctx := r.Context()
	for {
		var event wsconn.Event
		if err := sock.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error conn=%s: %v", conn.ID(), err)
			}
			return
		}

		sock.SetReadDeadline(time.Now().Add(readWait))
		h.handleEvent(ctx, conn, event)
	}
}

// handleEvent processes one inbound event. The read loop is the only caller,
// so events of a single connection are handled strictly in arrival order.
func (h *Handler) handleEvent(ctx context.Context, conn *wsconn.Conn, event wsconn.Event) {
	switch event.Event {
	case "join":
		h.handleJoin(conn, event.Data)
	case "message":
		h.handleMessage(ctx, conn, event.Data)
	default:
		h.sendError(conn, "Unknown event: "+event.Event)
	}
}

func (h *Handler) handleJoin(conn *wsconn.Conn, raw json.RawMessage) {
	userID, ok := decodeUserID(raw)
	if !ok || strings.TrimSpace(userID) == "" {
		h.sendError(conn, "Invalid user ID")
		return
	}

	if err := h.sessions.Join(userID, conn); err != nil {
		h.sendError(conn, "Invalid user ID")
		return
	}

	log.Printf("[ws] user %s joined on conn=%s", userID, conn.ID())
	conn.Send("joined", map[string]any{
		"success":   true,
		"userId":    userID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleMessage(ctx context.Context, conn *wsconn.Conn, raw json.RawMessage) {
	var payload messagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(conn, "Invalid message payload")
		return
	}

	userID, ok := h.sessions.UserOf(conn)
	if !ok {
		h.sendError(conn, "User not in any room. Please reconnect.")
		return
	}

	if err := h.chatSvc.Push(ctx, userID, payload.Message); err != nil {
		switch {
		case errors.Is(err, chatService.ErrEmptyMessage):
			h.sendError(conn, "Message cannot be empty")
		default:
			log.Printf("[ws] failed to process message for user=%s: %v", userID, err)
			h.sendError(conn, "Failed to process message")
		}
	}
}

func (h *Handler) sendConnected(conn *wsconn.Conn, debugMode bool) {
	message := "Connected to chat server"
	if debugMode {
		message = "Connected to chat server (debug mode)"
	}
	conn.Send("connected", map[string]any{
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"clientId":  conn.ID(),
	})
}

func (h *Handler) sendError(conn *wsconn.Conn, message string) {
	conn.Send("error", map[string]any{
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeUserID accepts both a bare JSON string and a {userId} object, the two
// shapes clients send for join.
func decodeUserID(raw json.RawMessage) (string, bool) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, true
	}

	var asObject joinPayload
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return asObject.UserID, true
	}
	return "", false
}

func handshakeToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}
