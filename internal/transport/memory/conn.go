package memory

import (
	"sync"

	"github.com/rudransh-shrivastava/peerdrop/internal/transport"
)

type conn struct {
	peerID string
	queue  *transport.EventQueue

	mu     sync.Mutex
	peer   *conn
	closed bool
}

func newConn(peerID string) *conn {
	return &conn{
		peerID: peerID,
		queue:  transport.NewEventQueue(),
	}
}

func (c *conn) PeerID() string {
	return c.peerID
}

func (c *conn) Events() <-chan transport.Event {
	return c.queue.Events()
}

func (c *conn) Send(data []byte) error {
	c.mu.Lock()
	peer := c.peer
	closed := c.closed
	c.mu.Unlock()

	if closed || peer == nil {
		return transport.ErrClosed
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	if !peer.receive(buf) {
		return transport.ErrClosed
	}
	return nil
}

func (c *conn) Close() error {
	return c.shutdown("")
}

func (c *conn) Reject(reason string) error {
	return c.shutdown(reason)
}

func (c *conn) shutdown(reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	peer := c.peer
	c.mu.Unlock()

	c.queue.Emit(transport.Event{Kind: transport.EventClose})
	c.queue.Stop()

	if peer != nil {
		peer.remoteClosed(reason)
	}
	return nil
}

func (c *conn) receive(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	return c.queue.Emit(transport.Event{Kind: transport.EventData, Data: data})
}

func (c *conn) remoteClosed(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.queue.Emit(transport.Event{Kind: transport.EventClose, Reason: reason})
}

func (c *conn) fail(err error) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.queue.Emit(transport.Event{Kind: transport.EventError, Err: err})
}
