package live

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/physiobook/physiobook/libs/auth"
	"github.com/physiobook/physiobook/libs/httpx"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Origin checks happen at the gateway, which also verified the caller.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and streams notifications for the caller's role.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IdentityFromRequest(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := NewClient(uuid.NewString(), auth.RoleCapabilities(id.Role))
	h.Register(client)
	h.logger.Info("live client connected", "client_id", client.ID, "user_id", id.UserID, "role", id.Role)

	go h.writePump(client, ws)
	go h.readPump(client, ws)
}

// readPump only drains control frames; dashboards never send data.
func (h *Hub) readPump(c *Client, ws *websocket.Conn) {
	defer func() {
		h.Unregister(c)
		_ = ws.Close()
	}()
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *Client, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
