package server

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yunjin-lab/archive-chat/internal/chat"
)

const (
	pongWait      = 60 * time.Second
	pingInterval  = 54 * time.Second
	writeDeadline = 10 * time.Second
)

// Client represents one WebSocket connection. The transport assigns it a
// unique id at upgrade time; the chat layer addresses it by that id only. A
// reconnect is a new id, never a resumed session.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	session        *chat.Manager
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	log            zerolog.Logger
}

// newClient creates a Client for an upgraded connection. The send channel is
// buffered so fan-out never blocks on a slow reader.
func newClient(conn *websocket.Conn, hub *Hub, session *chat.Manager, cfg *Config, log zerolog.Logger) *Client {
	id := uuid.NewString()
	addr := ""
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
		addr = conn.RemoteAddr().String()
	}

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		session:        session,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefillInterval),
		log:            log.With().Str("conn", id).Str("addr", addr).Logger(),
	}
}

// ID returns the transport-assigned connection identifier.
func (c *Client) ID() string {
	return c.id
}

// closeConn closes the underlying connection, tolerating clients that never
// finished the upgrade.
func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn().Err(err).Msg("error closing client connection")
	}
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs an appropriate message for a read failure and reports
// whether the read loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("message exceeded maximum size")
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info().Err(err).Msg("client disconnected")
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info().Err(err).Msg("client connection closed")
		return true
	}

	c.log.Warn().Err(err).Msg("websocket read error")
	return true
}

// handleEvent decodes one inbound envelope and dispatches it to the session
// manager. Unknown events and malformed payloads are dropped; the sender gets
// no error back, matching the relay's best-effort contract.
func (c *Client) handleEvent(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Debug().Err(err).Msg("dropping malformed envelope")
		return
	}

	switch env.Event {
	case chat.EventJoinRoom:
		var req chat.JoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.log.Debug().Err(err).Msg("dropping malformed join payload")
			return
		}
		if err := c.session.Join(c.id, req); err != nil {
			c.log.Warn().Err(err).Msg("join rejected")
		}
	case chat.EventMessage:
		var req chat.PostRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.log.Debug().Err(err).Msg("dropping malformed message payload")
			return
		}
		if err := c.session.Post(c.id, req); err != nil {
			c.log.Warn().Err(err).Msg("message rejected")
		}
	default:
		c.log.Debug().Str("event", env.Event).Msg("dropping unknown event")
	}
}

// readPump consumes inbound frames until the connection dies. The deferred
// disconnect transition always runs, so an abrupt close still emits the leave
// notice and never leaves a stale binding behind.
func (c *Client) readPump() {
	defer func() {
		c.session.Disconnect(c.id)
		c.hub.Remove(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in readPump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		if !c.rateLimiter.allow() {
			c.log.Warn().Msg("rate limit exceeded; discarding event")
			continue
		}

		c.handleEvent(raw)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with periodic pings. Each envelope goes out as its own text frame so
// clients can decode frame-per-event.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in writePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeMessage(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeMessage sends one frame, plus any frames already queued behind it, and
// reports whether the pump should keep running.
func (c *Client) writeMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.log.Warn().Err(err).Msg("error writing message")
		return false
	}

	for i := len(c.send); i > 0; i-- {
		queued, open := <-c.send
		if !open {
			return false
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
			c.log.Warn().Err(err).Msg("error writing queued message")
			return false
		}
	}
	return true
}

// writePing keeps the connection alive and reports whether the pump should
// keep running.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing ping message")
		}
		return false
	}
	return true
}
