package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trigon_server/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second

	maxMessageSize = 4096
	sendBuffer     = 256
)

// Client is one websocket connection. Its ID is per-connection; the player
// identity arrives later with the join command.
type Client struct {
	ID     string
	Origin string
	Conn   *websocket.Conn
	Send   chan []byte

	gateway   *Gateway
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, origin string, gw *Gateway) *Client {
	return &Client{
		ID:      uuid.NewString(),
		Origin:  origin,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		gateway: gw,
	}
}

// Run starts the write pump and reads commands until the transport drops.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer c.gateway.HandleClose(c)

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			logger.Debug("read closed", "conn_id", c.ID, "error", err)
			return
		}
		c.gateway.HandleCommand(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("write failed", "conn_id", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands data to the write pump without blocking the caller. A full
// buffer means the peer stopped reading; the message is dropped and the
// connection dies on its own deadlines.
func (c *Client) enqueue(data []byte) {
	select {
	case c.Send <- data:
	default:
		logger.Warn("send buffer full, dropping message", "conn_id", c.ID)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}
