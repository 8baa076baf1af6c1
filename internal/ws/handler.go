// Package ws implements the Control Plane (spec §4.K): the
// gorilla-websocket transport that upgrades /ws connections, speaks
// the "<mint>,<action>" text protocol, and drives internal/hub's
// subscribe/unsubscribe business logic. Grounded on
// backendService/websocket.Handler's readPump/writePump/upgrader.
package ws

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"tokenpulse/internal/hub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024

	connectedMessage = "connected to tokenpulse price feed"
	usageHint        = `send "<mint>,subscribe" or "<mint>,unsubscribe"`
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var nextConnID atomic.Uint64

// Handler upgrades HTTP requests to websocket connections and wires
// each one to the Hub.
type Handler struct {
	hub *hub.Hub
	log *logrus.Entry
}

// New builds a Handler.
func New(h *hub.Hub, log *logrus.Entry) *Handler {
	return &Handler{hub: h, log: log}
}

// HandleWebSocket upgrades the request, registers the connection with
// the Hub, and starts its read/write pumps. A legacy "token" query
// param is treated as an immediate subscribe (§4.K backward
// compatibility note).
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws: upgrade failed")
		return
	}

	client := hub.NewConnection(generateConnID())
	h.hub.Connected(client, connectedMessage, usageHint)

	go h.writePump(conn, client)
	go h.readPump(conn, client)

	if legacy := c.Query("token"); legacy != "" {
		h.hub.Subscribe(c.Request.Context(), client, legacy)
	}
}

func (h *Handler) readPump(conn *websocket.Conn, client *hub.Connection) {
	defer func() {
		if r := recover(); r != nil {
			h.log.WithField("connection", client.ID).Errorf("ws: readPump panic: %v", r)
		}
		h.hub.Disconnect(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(context.Background(), client, message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, client *hub.Connection, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.log.WithField("connection", client.ID).Errorf("ws: handleMessage panic: %v", r)
			h.hub.SendError(client, "internal server error")
		}
	}()

	mint, action, ok := parseSubscriptionMessage(message)
	if !ok {
		h.hub.SendError(client, `malformed message, expected "<mint>,subscribe" or "<mint>,unsubscribe"`)
		return
	}

	switch action {
	case "subscribe":
		h.hub.Subscribe(ctx, client, mint)
	case "unsubscribe":
		h.hub.Unsubscribe(client, mint)
	default:
		h.hub.SendError(client, `unknown action, expected "subscribe" or "unsubscribe"`)
	}
}

// parseSubscriptionMessage splits the wire protocol's "<mint>,<action>"
// text frame (§4.K).
func parseSubscriptionMessage(message []byte) (mint, action string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(string(message)), ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	mint = strings.TrimSpace(parts[0])
	action = strings.ToLower(strings.TrimSpace(parts[1]))
	if mint == "" || action == "" {
		return "", "", false
	}
	return mint, action, true
}

func (h *Handler) writePump(conn *websocket.Conn, client *hub.Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		if r := recover(); r != nil {
			h.log.WithField("connection", client.ID).Errorf("ws: writePump panic: %v", r)
		}
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func generateConnID() string {
	n := nextConnID.Add(1)
	return "conn-" + time.Now().UTC().Format("20060102T150405") + "-" + strconv.FormatUint(n, 10)
}
