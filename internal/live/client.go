package live

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// sendBuffer bounds the per-subscriber backlog; overflow drops oldest.
	sendBuffer = 100
)

// Client is a middleman between one websocket connection and the hub
type Client struct {
	hub       *Hub
	projectID int64
	conn      *websocket.Conn
	send      chan []byte
	log       *zap.Logger
}

// NewClient creates a new live client for a project channel
func NewClient(hub *Hub, projectID int64, conn *websocket.Conn, log *zap.Logger) *Client {
	return &Client{
		hub:       hub,
		projectID: projectID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		log:       log,
	}
}

// Start begins the read and write pumps for the client
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// enqueue buffers a payload for delivery. Called only while the hub lock is
// held, which serializes it against Unregister closing the channel. The
// write pump may drain concurrently; both selects are non-blocking, so an
// eviction lost to the pump only frees room for the retry.
func (c *Client) enqueue(payload []byte) {
	for {
		select {
		case c.send <- payload:
			return
		default:
		}
		// Buffer full: evict the oldest buffered payload and retry.
		select {
		case <-c.send:
		default:
		}
	}
}

// readPump consumes client frames until the connection dies so pings are
// answered and a dead peer is detected promptly.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("Unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}

// writePump streams buffered payloads to the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Error("Failed to set write deadline", zap.Error(err))
				return
			}
			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
