// Package transport defines what the session layer needs from a peer-to-peer
// transport: register an identifier, connect, accept, send and close.
package transport

import (
	"context"
	"errors"
	"io"
)

var (
	ErrIDTaken         = errors.New("identifier already registered")
	ErrPeerUnavailable = errors.New("peer unavailable")
	ErrNotOpen         = errors.New("endpoint not open")
	ErrClosed          = errors.New("connection closed")
)

// Endpoint is one instance's presence in the signaling namespace.
type Endpoint interface {
	// Open registers id and returns once registration is confirmed. An empty
	// id lets the signaling side assign one.
	Open(ctx context.Context, id string) (string, error)
	// Connect starts a connection to remoteID and returns it while still
	// pending. Negotiation happens in the background; its outcome arrives as
	// an open or error event.
	Connect(ctx context.Context, remoteID string) (Conn, error)
	// Incoming yields connections initiated by remote peers. They are open
	// when delivered.
	Incoming() <-chan Conn
	Close() error
}

// Conn is one channel to a remote peer. Events are delivered in order: at
// most one open, any number of data, then exactly one close or error, after
// which the channel is closed.
type Conn interface {
	PeerID() string
	Events() <-chan Event
	Send(data []byte) error
	// Reject closes the connection and tells the remote side why.
	Reject(reason string) error
	Close() error
}

type Signaler interface {
	Register(ctx context.Context, id string) (string, error)
	SendSignal(ctx context.Context, peerID string, signal []byte) error
	RecvSignal() <-chan Signal
	io.Closer
}

// Signal is a message relayed by the signaling service. Err is set when the
// service bounced a signal back, e.g. because PeerID is not registered.
type Signal struct {
	PeerID  string
	Payload []byte
	Err     error
}
