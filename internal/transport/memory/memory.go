// Package memory is an in-process transport. Endpoints on the same Network
// reach each other by identifier, the way peers on one signaling server do.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/peerdrop/internal/transport"
)

const incomingBuffer = 16

type Network struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
}

func NewNetwork() *Network {
	return &Network{endpoints: make(map[string]*Endpoint)}
}

// Endpoint returns a new, not yet registered endpoint on the network.
func (n *Network) Endpoint() *Endpoint {
	return &Endpoint{
		network:  n,
		incoming: make(chan transport.Conn, incomingBuffer),
	}
}

// Registered lists the identifiers currently on the network.
func (n *Network) Registered() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]string, 0, len(n.endpoints))
	for id := range n.endpoints {
		ids = append(ids, id)
	}
	return ids
}

func (n *Network) register(id string, e *Endpoint) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.endpoints[id]; exists {
		return transport.ErrIDTaken
	}
	n.endpoints[id] = e
	return nil
}

func (n *Network) lookup(id string) (*Endpoint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.endpoints[id]
	return e, ok
}

func (n *Network) unregister(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, id)
}

type Endpoint struct {
	network  *Network
	incoming chan transport.Conn

	mu     sync.Mutex
	id     string
	closed bool
	conns  []*conn
}

func (e *Endpoint) Open(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", transport.ErrClosed
	}
	if e.id != "" {
		return e.id, nil
	}
	if err := e.network.register(id, e); err != nil {
		return "", err
	}
	e.id = id
	return id, nil
}

func (e *Endpoint) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

func (e *Endpoint) Connect(ctx context.Context, remoteID string) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	localID := e.ID()
	if localID == "" {
		return nil, transport.ErrNotOpen
	}

	local := newConn(remoteID)

	remote, ok := e.network.lookup(remoteID)
	if !ok {
		e.track(local)
		local.fail(transport.ErrPeerUnavailable)
		return local, nil
	}

	peer := newConn(localID)
	local.peer = peer
	peer.peer = local
	e.track(local)

	local.queue.Emit(transport.Event{Kind: transport.EventOpen})
	if !remote.deliver(peer) {
		local.fail(transport.ErrPeerUnavailable)
	}
	return local, nil
}

func (e *Endpoint) Incoming() <-chan transport.Conn {
	return e.incoming
}

// Close unregisters the endpoint and closes every connection it holds.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	id := e.id
	conns := e.conns
	e.conns = nil
	close(e.incoming)
	e.mu.Unlock()

	if id != "" {
		e.network.unregister(id)
	}
	for _, c := range conns {
		_ = c.Close()
	}
	return nil
}

func (e *Endpoint) deliver(c *conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	select {
	case e.incoming <- c:
		e.conns = append(e.conns, c)
		return true
	default:
		return false
	}
}

func (e *Endpoint) track(c *conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns = append(e.conns, c)
}
