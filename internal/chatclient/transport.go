package chatclient

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shanjith1316/Capstone-Project/internal/server"
)

// Conn is one established transport connection, framed in the chat wire
// schema.
type Conn interface {
	ReadFrame() (server.Frame, error)
	WriteFrame(frame server.Frame) error
	Close() error
}

// Transport dials new connections. The production implementation wraps the
// gorilla dialer; tests substitute fakes.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsTransport struct {
	dialer *websocket.Dialer
}

// NewWebSocketTransport returns the production WebSocket transport.
func NewWebSocketTransport() Transport {
	return &wsTransport{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (t *wsTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadFrame() (server.Frame, error) {
	var frame server.Frame
	err := c.conn.ReadJSON(&frame)
	return frame, err
}

func (c *wsConn) WriteFrame(frame server.Frame) error {
	return c.conn.WriteJSON(frame)
}

func (c *wsConn) Close() error {
	// Best-effort close handshake before dropping the TCP connection.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
