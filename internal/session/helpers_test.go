package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/peerdrop/internal/logger"
	"github.com/rudransh-shrivastava/peerdrop/internal/transport"
	"github.com/rudransh-shrivastava/peerdrop/internal/transport/memory"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type recorder struct {
	mu       sync.Mutex
	notes    []Notification
	maxCount int
	last     State
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) StateChanged(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = s
	if s.ConnectionCount > r.maxCount {
		r.maxCount = s.ConnectionCount
	}
}

func (r *recorder) notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

func (r *recorder) has(kind Kind, code Code, message string) bool {
	for _, n := range r.notifications() {
		if n.Kind == kind && n.Code == code && (message == "" || n.Message == message) {
			return true
		}
	}
	return false
}

func (r *recorder) peak() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxCount
}

// fixedID registers exactly the given identifier.
type fixedID struct {
	endpoint transport.Endpoint
	id       string
}

func (f fixedID) Obtain(ctx context.Context) (string, error) {
	return f.endpoint.Open(ctx, f.id)
}

type peer struct {
	*Manager
	sink *recorder
}

func startManager(t *testing.T, endpoint transport.Endpoint, id string, capacity int) peer {
	t.Helper()

	sink := &recorder{}
	m, err := New(Options{
		Endpoint: endpoint,
		Identity: fixedID{endpoint: endpoint, id: id},
		Capacity: capacity,
		Sink:     sink,
		Logger:   logger.NewDiscard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitFor):
			t.Errorf("session for %s did not stop", id)
		}
	})

	select {
	case <-m.Ready():
	case <-time.After(waitFor):
		t.Fatalf("session for %s never became ready", id)
	}
	return peer{Manager: m, sink: sink}
}

func startPeer(t *testing.T, n *memory.Network, id string, capacity int) peer {
	t.Helper()
	return startManager(t, n.Endpoint(), id, capacity)
}

func waitCount(t *testing.T, p peer, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.State().ConnectionCount == want
	}, waitFor, tick, "expected connection count %d, got %d", want, p.State().ConnectionCount)
}

// fakeEndpoint hands control of every connection to the test.
type fakeEndpoint struct {
	incoming chan transport.Conn

	mu         sync.Mutex
	dialed     []*fakeConn
	connectErr error
	closed     bool
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{incoming: make(chan transport.Conn, 16)}
}

func (f *fakeEndpoint) Open(_ context.Context, id string) (string, error) {
	if id == "" {
		return "fake", nil
	}
	return id, nil
}

func (f *fakeEndpoint) Connect(_ context.Context, remoteID string) (transport.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connectErr != nil {
		return nil, f.connectErr
	}
	c := newFakeConn(remoteID)
	f.dialed = append(f.dialed, c)
	return c, nil
}

func (f *fakeEndpoint) Incoming() <-chan transport.Conn {
	return f.incoming
}

func (f *fakeEndpoint) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEndpoint) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeEndpoint) dial(t *testing.T, i int) *fakeConn {
	t.Helper()
	var c *fakeConn
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.dialed) > i {
			c = f.dialed[i]
			return true
		}
		return false
	}, waitFor, tick)
	return c
}

type fakeConn struct {
	peerID string
	queue  *transport.EventQueue

	mu       sync.Mutex
	sent     [][]byte
	sendErr  error
	closed   bool
	rejected string
}

func newFakeConn(peerID string) *fakeConn {
	return &fakeConn{peerID: peerID, queue: transport.NewEventQueue()}
}

func (c *fakeConn) PeerID() string                 { return c.peerID }
func (c *fakeConn) Events() <-chan transport.Event { return c.queue.Events() }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Reject(reason string) error {
	c.mu.Lock()
	c.rejected = reason
	c.mu.Unlock()
	return c.Close()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.queue.Stop()
	return nil
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *fakeConn) emit(ev transport.Event) {
	c.queue.Emit(ev)
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) rejectReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejected
}
