// internal/events/ws.go
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"opsgate/internal/auth"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 30 * time.Second

	// Ping period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Deadline for the client to complete the auth handshake.
	authWait = 10 * time.Second

	maxMessageSize = 4096
)

// clientCommand is what clients send post-connect.
type clientCommand struct {
	Action string   `json:"action"` // auth | subscribe | unsubscribe
	Token  string   `json:"token,omitempty"`
	Topics []string `json:"topics,omitempty"`
}

type ackMessage struct {
	Action   string   `json:"action"`
	OK       bool     `json:"ok"`
	Topics   []string `json:"topics,omitempty"`
	Rejected []string `json:"rejected,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// TokenVerifier is what the endpoint needs from the auth layer.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (auth.Principal, error)
}

// Handler upgrades WebSocket clients and runs their read/write pumps.
// The caller is responsible for rate-limiting upgrade attempts.
type Handler struct {
	hub      *Hub
	verifier TokenVerifier
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, verifier TokenVerifier, log *zap.SugaredLogger) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Bearer-token handshake is the auth boundary, not the Origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn.SetReadLimit(maxMessageSize)

	// First frame must be the auth handshake.
	_ = conn.SetReadDeadline(time.Now().Add(authWait))
	var hello clientCommand
	if err := conn.ReadJSON(&hello); err != nil || hello.Action != "auth" {
		h.closeWith(conn, "auth required")
		return
	}
	pr, err := h.verifier.Verify(r.Context(), hello.Token)
	if err != nil {
		h.closeWith(conn, "invalid credentials")
		return
	}

	c := &client{
		tenantID: pr.TenantID,
		send:     make(chan []byte, sendBuffer),
		topics:   map[string]struct{}{},
	}
	if !h.hub.register(c) {
		h.closeWith(conn, "connection limit reached")
		return
	}
	h.log.Infow("ws connected", "sub", pr.SubjectID, "tenant", pr.TenantID)

	_ = conn.WriteJSON(ackMessage{Action: "auth", OK: true})

	go h.writePump(conn, c)
	h.readPump(conn, c)
}

func (h *Handler) closeWith(conn *websocket.Conn, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	_ = conn.Close()
}

// readPump consumes subscribe/unsubscribe commands until the connection
// drops, then unregisters the client (which stops the write pump).
func (h *Handler) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		h.hub.unregister(c)
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd clientCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		switch cmd.Action {
		case "subscribe":
			added, rejected := h.hub.subscribe(c, cmd.Topics)
			ack := ackMessage{Action: "subscribe", OK: len(rejected) == 0, Topics: added, Rejected: rejected}
			if len(rejected) > 0 {
				ack.Error = "topic limit reached"
			}
			h.sendAck(c, ack)
		case "unsubscribe":
			h.hub.unsubscribe(c, cmd.Topics)
			h.sendAck(c, ackMessage{Action: "unsubscribe", OK: true, Topics: cmd.Topics})
		}
	}
}

// sendAck reuses the outbound buffer so acks also never block the reader.
func (h *Handler) sendAck(c *client, ack ackMessage) {
	raw, err := json.Marshal(ack)
	if err != nil {
		return
	}
	c.trySend(raw)
}

func (h *Handler) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
