package hub

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// Client is one live connection bound to a session.
type Client struct {
	id        string
	sessionID string
	userID    string

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	handle  func(c *Client, msg []byte)
	logger  zerolog.Logger
}

func newClient(h *Hub, conn *websocket.Conn, sessionID, userID string, limiter *rate.Limiter, logger zerolog.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:        id,
		sessionID: sessionID,
		userID:    userID,
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		limiter:   limiter,
		logger: logger.With().
			Str("connection_id", id).
			Str("session_id", sessionID).
			Str("user_id", userID).
			Logger(),
	}
}

// ID returns the connection ID.
func (c *Client) ID() string { return c.id }

// SessionID returns the session the connection is bound to.
func (c *Client) SessionID() string { return c.sessionID }

// UserID returns the authorized user.
func (c *Client) UserID() string { return c.userID }

// enqueue queues a frame without blocking. It fails when the buffer is full
// or the client is closed.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// reply sends a notice to this connection only.
func (c *Client) reply(n Notice) {
	data, err := json.Marshal(n)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode notice")
		return
	}
	if !c.enqueue(data) {
		c.logger.Warn().Str("type", n.Type).Msg("dropping reply to slow client")
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// start runs the pumps. The read pump unregisters the client when the peer
// goes away.
func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.logger.Debug().Msg("read pump stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.reply(errorNotice(CodeMalformedMessage, "binary frames are not supported", crypto.NewRequestID()))
			continue
		}
		if !c.limiter.Allow() {
			c.reply(errorNotice(CodeRateLimited, "too many messages", crypto.NewRequestID()))
			continue
		}
		if c.handle != nil {
			c.handle(c, bytes.TrimSpace(message))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug().Msg("write pump stopped")
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn().Err(err).Msg("failed to write message")
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is still queued.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
