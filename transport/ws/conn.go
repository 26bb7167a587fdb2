package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ephemeral/relay/id"
	"github.com/ephemeral/relay/protocol"
	"github.com/ephemeral/relay/session"
)

// compile-time interface check.
var _ session.Transport = (*conn)(nil)

// conn is one upgraded client socket. Frames are encoded by the caller and
// queued; a single write pump drains the queue.
type conn struct {
	id     id.ID
	ws     *websocket.Conn
	config Config

	mu     sync.Mutex
	send   chan []byte
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(connID id.ID, ws *websocket.Conn, cfg Config) *conn {
	return &conn{
		id:     connID,
		ws:     ws,
		config: cfg,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues msg without blocking. A full queue means the client is not
// keeping up: the connection is torn down and ErrSendBufferFull returned.
func (c *conn) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		c.mu.Unlock()
		return nil
	default:
	}
	c.closed = true
	c.mu.Unlock()

	c.teardown()
	return ErrSendBufferFull
}

// Close stops the write pump and closes the socket.
func (c *conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.teardown()
	return nil
}

// goingAway tells the client the server is shutting down, then closes.
func (c *conn) goingAway() {
	deadline := time.Now().Add(c.config.WriteWait)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.Close()
}

// teardown closes the socket exactly once, which also unblocks the read loop.
func (c *conn) teardown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *conn) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.teardown()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.teardown()
				return
			}
		}
	}
}
