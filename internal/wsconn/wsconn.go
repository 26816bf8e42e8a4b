// Package wsconn wraps gorilla websocket connections with serialised writes.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WriteTimeout bounds a single frame write.
const WriteTimeout = 10 * time.Second

// Conn is a websocket connection carrying text frames. Writes may come from
// any goroutine; reads must come from a single one.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// New wraps an established websocket connection.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ReadMessage blocks until the next data frame arrives.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// WriteMessage sends data as a single text frame.
func (c *Conn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// SetReadDeadline bounds the next ReadMessage. A zero time clears it.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// Close sends a close frame and closes the underlying connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(time.Second))
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// IsNormalClose reports whether err, possibly wrapped, is an orderly close
// by the peer.
func IsNormalClose(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
}

// Dialer opens client connections.
type Dialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Dial connects to a ws:// or wss:// address.
func (d Dialer) Dial(ctx context.Context, addr string) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 15 * time.Second
	}
	ws, resp, err := dialer.DialContext(ctx, addr, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", addr, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(ws), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Upgrade turns an HTTP request into a server-side connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return New(ws), nil
}
