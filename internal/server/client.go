// Package server manages individual WebSocket sessions, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shanjith1316/Capstone-Project/internal/auth"
)

const (
	pongWait      = 60 * time.Second
	pingInterval  = 54 * time.Second
	writeDeadline = 10 * time.Second
	sendQueueSize = 256
)

// Client represents one live WebSocket session bound to a verified identity.
// It implements the session interface consumed by the registry, presence
// broadcaster, and router.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	id     int64
	name   string
	connID uuid.UUID
	addr   string
	log    *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once

	rateLimiter *rateLimiter
	limits      Limits
}

// NewClient creates a session for an upgraded connection. The identity comes
// from the verified handshake claims, never from any payload the connection
// later sends.
func NewClient(conn *websocket.Conn, hub *Hub, claims *auth.Claims, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.limits.MaxMessageSize)
	}

	return &Client{
		conn:        conn,
		send:        make(chan []byte, sendQueueSize),
		hub:         hub,
		id:          claims.UserID,
		name:        claims.Username,
		connID:      uuid.New(),
		addr:        addr,
		log:         hub.log.With("user_id", claims.UserID, "remote_addr", addr),
		rateLimiter: newRateLimiter(hub.limits.RateBurst, hub.limits.RateRefill),
		limits:      hub.limits,
	}
}

func (c *Client) userID() int64     { return c.id }
func (c *Client) username() string  { return c.name }
func (c *Client) handle() uuid.UUID { return c.connID }

// trySend enqueues a frame without blocking. It returns false when the
// session is closed or its buffer is full.
func (c *Client) trySend(payload []byte) bool {
	// The send channel may be closed between the flag check and the send;
	// recover keeps a racing teardown from taking down the calling goroutine.
	defer func() {
		_ = recover()
	}()

	if c.closed.Load() {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// teardown closes the send channel and the transport. Idempotent.
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				c.log.Warn("error closing connection", "error", err)
			}
		}
	})
}

// sendError reports a frame-level failure to this session only.
func (c *Client) sendError(message string) {
	c.trySend(mustMarshal(Frame{Type: FrameError, Message: message}))
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs the read failure and reports whether the read loop
// should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("message exceeded maximum size", "limit", c.limits.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client disconnected", "error", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Info("connection closed", "error", err)
	default:
		c.log.Warn("websocket read error", "error", err)
	}
	return true
}

// processFrame decodes and dispatches one inbound frame. Non-conforming input
// is rejected here, at the boundary, with an Error frame to the caller.
func (c *Client) processFrame(raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.log.Warn("malformed frame", "error", err)
		c.sendError("malformed frame")
		return
	}

	switch frame.Type {
	case FrameSendMessage:
		if err := c.hub.router.Route(c, frame.ReceiverID, frame.Content); err != nil {
			c.log.Debug("send rejected", "error", err)
		}
	case FrameGetOnlineUsers:
		c.hub.presence.SendSnapshot(c)
	default:
		c.sendError("unknown frame type: " + frame.Type)
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
			c.teardown()
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				return
			}
			continue
		}

		if !c.rateLimiter.allow() {
			c.log.Warn("rate limit exceeded; discarding frame",
				"burst", c.limits.RateBurst, "refill", c.limits.RateRefill)
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				c.log.Warn("error setting write deadline", "error", err)
				return
			}
			if !ok {
				// Teardown closed the send channel; tell the peer goodbye.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					c.log.Warn("error writing close message", "error", err)
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn("error writing message", "error", err)
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
