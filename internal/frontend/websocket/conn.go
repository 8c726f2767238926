package websocket

import (
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("websocket connection closed")

// Conn adapts a websocket to the line-oriented session interface.
//
// Concurrency: ReadLine must be called from one goroutine; writes are safe
// from any goroutine.
type Conn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// newConn applies the read limit and, when pingInterval > 0, starts pinging
// the peer and drops it if a pong does not arrive within two intervals.
func newConn(ws *websocket.Conn, readLimit int64, pingInterval time.Duration) *Conn {
	c := &Conn{ws: ws, done: make(chan struct{})}
	if readLimit > 0 {
		ws.SetReadLimit(readLimit)
	}
	if pingInterval > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(2 * pingInterval))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(2 * pingInterval))
		})
		go c.ping(pingInterval)
	}
	return c
}

func (c *Conn) ping(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// ReadLine returns the next text frame with trailing line breaks removed.
// Binary frames are skipped.
func (c *Conn) ReadLine() (string, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind == websocket.TextMessage {
			return strings.TrimRight(string(data), "\r\n"), nil
		}
	}
}

// ReadPassword is ReadLine; browsers mask input on their side.
func (c *Conn) ReadPassword() (string, error) {
	return c.ReadLine()
}

// WriteLine sends text as one frame.
func (c *Conn) WriteLine(text string) error {
	return c.write(text)
}

// WritePrompt sends a prompt as one frame.
func (c *Conn) WritePrompt(text string) error {
	return c.write(text)
}

func (c *Conn) write(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a normal close frame and closes the connection. Safe to call
// more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

// RemoteAddr returns the browser's address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}
