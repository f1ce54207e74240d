package relay

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/connectra/meeting-client/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type SessionID string

var _ core.SignalConnection = (*Conn)(nil)

// Conn is one websocket client of the relay.
type Conn struct {
	sid  SessionID
	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newConn(sid SessionID, ws *websocket.Conn, buffer int) *Conn {
	return &Conn{sid: sid, ws: ws, send: make(chan []byte, buffer)}
}

func (c *Conn) SID() SessionID { return c.sid }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}
