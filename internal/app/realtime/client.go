package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatterbox/internal/pkg/logx"
	"chatterbox/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// capacity of the per-connection outbound queue.
	sendQueueSize = 256
)

// Session receives the inbound side of a live connection.
type Session interface {
	// Receive handles one inbound frame.
	Receive(ctx context.Context, h Handle, frame []byte)
	// Disconnect runs once after the read loop ends.
	Disconnect(ctx context.Context, h Handle)
}

// Client is a WebSocket-backed Handle.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn

	// outbound frames waiting for WritePump.
	send chan []byte

	mu     sync.RWMutex
	closed bool

	logger zerolog.Logger
}

var _ Handle = (*Client)(nil)

// NewClient wraps an upgraded connection for userID.
func NewClient(conn *websocket.Conn, userID string) *Client {
	id := randx.ID()

	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		logger: logx.Session(id, userID),
	}
}

// ID implements Handle.
func (c *Client) ID() string { return c.id }

// UserID implements Handle.
func (c *Client) UserID() string { return c.userID }

// Send queues frame. A full queue means the peer cannot keep up, so the session is closed
// and the client is expected to reconnect.
func (c *Client) Send(frame []byte) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}

	select {
	case c.send <- frame:
		c.mu.RUnlock()
		return true
	default:
		c.mu.RUnlock()
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, closing slow consumer")
		c.Close()
		return false
	}
}

// Close stops the write pump, which sends a close frame and closes the socket.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Serve runs both pumps and blocks until the connection ends.
func (c *Client) Serve(ctx context.Context, session Session) {
	go c.WritePump()
	c.ReadPump(ctx, session)
}

// ReadPump reads frames and hands them to session until the connection fails.
func (c *Client) ReadPump(ctx context.Context, session Session) {
	defer func() {
		session.Disconnect(ctx, c)
		c.Close()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Unexpected close while reading")
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn().Int("message_type", messageType).Msg("Ignoring non-text frame")
			continue
		}

		session.Receive(ctx, c, frame)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueued(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeQueued returns false when the pump should stop.
func (c *Client) writeQueued(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
