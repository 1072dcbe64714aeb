// Package console implements the remote debug-attach device: a
// websocket endpoint that streams process snapshots to anyone attached,
// modeled directly on the teacher's consoleIO device (vm/devices.go) --
// a small mutex-guarded struct holding device state, a background
// goroutine doing the actual I/O, and an explicit Close that tears the
// goroutine down cleanly.
package console

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Console broadcasts snapshot lines to every attached debugger
// connection.
type Console struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]bool
	closed bool
}

func New() *Console {
	return &Console{conns: make(map[*websocket.Conn]bool)}
}

// Handler upgrades an HTTP request to a websocket and registers the
// connection for broadcast until it disconnects.
func (c *Console) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conns[conn] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		conn.Close()
	}()

	// The attach socket is read-only from the debugger's point of view;
	// we still have to drain incoming frames (pings, close) or the
	// connection never reports its disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish broadcasts one snapshot line to every attached connection,
// dropping any connection that can't keep up rather than blocking the
// scheduler that called it.
func (c *Console) Publish(snapshot string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for conn := range c.conns {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(snapshot)); err != nil {
			delete(c.conns, conn)
			conn.Close()
		}
	}
}

// Close tears down every attached connection.
func (c *Console) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for conn := range c.conns {
		conn.Close()
		delete(c.conns, conn)
	}
}
