package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
)

// WebSocketDialer opens WebSocket connections and exchanges CoT as text frames.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

// NewWebSocketDialer returns a dialer with default timeouts.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{
		HandshakeTimeout: defaultHandshakeTimeout,
		WriteTimeout:     defaultWriteTimeout,
	}
}

// Dial performs the WebSocket handshake and starts the read loop.
func (d *WebSocketDialer) Dial(ctx context.Context, server string, h Handler) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	ws, resp, err := dialer.DialContext(ctx, server, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	c := &wsConn{
		ws:           ws,
		writeTimeout: d.WriteTimeout,
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = defaultWriteTimeout
	}

	go c.readLoop(h)
	return c, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closing      atomic.Bool
}

// Send writes payload as a single text frame.
func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	if c.closing.Load() {
		return websocket.ErrCloseSent
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// Close sends a close frame and closes the socket. The read loop then reports OnClose(nil).
func (c *wsConn) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) readLoop(h Handler) {
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			closedLocally := c.closing.Swap(true)
			_ = c.ws.Close()
			h.OnClose(classifyClose(err, closedLocally))
			return
		}
		h.OnMessage(payload)
	}
}

// classifyClose maps a read error to the OnClose argument: nil for orderly
// closes, the error otherwise.
func classifyClose(err error, closedLocally bool) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway {
			return nil
		}
		return err
	}
	// Reads fail with a net error once we close the socket ourselves.
	if closedLocally {
		return nil
	}
	return err
}
