package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"trigon_server/internal/logger"
	"trigon_server/internal/ws"
)

// Origin is validated by the handler itself, so the upgrader accepts all.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WS upgrades the connection and hands it to the gateway. The per-origin
// connection cap is checked after the upgrade so the refusal can be delivered
// as a websocket error event instead of an opaque HTTP status.
func (h *Handler) WS(c *gin.Context) {
	origin := c.Request.Header.Get("Origin")
	if h.Cfg.AllowedOrigin != "" && origin != h.Cfg.AllowedOrigin {
		logger.Warn("origin rejected", "origin", origin)
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// Rate limiting keys on the client address rather than the Origin header,
	// which costs an attacker nothing to vary.
	key := c.ClientIP()
	if !h.Limits.AllowConnection(key) {
		refusal := `{"type":"error","payload":{"code":"` + ws.CodeRateConnections + `","message":"too many connections"}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(refusal))
		_ = conn.Close()
		return
	}

	client := ws.NewClient(conn, key, h.Gateway)
	h.Gateway.Register(client)
	logger.Debug("websocket connected", "conn_id", client.ID, "ip", key)
	client.Run()
}
