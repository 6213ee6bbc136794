package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/peerdrop/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, c transport.Conn) transport.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return transport.Event{}
}

func accept(t *testing.T, e *Endpoint) transport.Conn {
	t.Helper()
	select {
	case c := <-e.Incoming():
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for incoming connection")
	}
	return nil
}

func openEndpoint(t *testing.T, n *Network, id string) *Endpoint {
	t.Helper()
	e := n.Endpoint()
	got, err := e.Open(context.Background(), id)
	require.NoError(t, err)
	if id != "" {
		require.Equal(t, id, got)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpen_DuplicateID(t *testing.T) {
	n := NewNetwork()
	openEndpoint(t, n, "1234")

	_, err := n.Endpoint().Open(context.Background(), "1234")
	assert.ErrorIs(t, err, transport.ErrIDTaken)
}

func TestOpen_AssignsID(t *testing.T) {
	n := NewNetwork()
	e := n.Endpoint()

	id, err := e.Open(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, []string{id}, n.Registered())
}

func TestConnect_RequiresOpen(t *testing.T) {
	n := NewNetwork()
	_, err := n.Endpoint().Connect(context.Background(), "1234")
	assert.ErrorIs(t, err, transport.ErrNotOpen)
}

func TestConnect_UnknownPeer(t *testing.T) {
	n := NewNetwork()
	a := openEndpoint(t, n, "1111")

	c, err := a.Connect(context.Background(), "9999")
	require.NoError(t, err)

	ev := nextEvent(t, c)
	assert.Equal(t, transport.EventError, ev.Kind)
	assert.True(t, errors.Is(ev.Err, transport.ErrPeerUnavailable))
}

func TestConnect_SendAndClose(t *testing.T) {
	n := NewNetwork()
	a := openEndpoint(t, n, "1234")
	b := openEndpoint(t, n, "5678")

	out, err := b.Connect(context.Background(), "1234")
	require.NoError(t, err)
	assert.Equal(t, "1234", out.PeerID())
	assert.Equal(t, transport.EventOpen, nextEvent(t, out).Kind)

	in := accept(t, a)
	assert.Equal(t, "5678", in.PeerID())

	require.NoError(t, out.Send([]byte("hello")))
	ev := nextEvent(t, in)
	assert.Equal(t, transport.EventData, ev.Kind)
	assert.Equal(t, "hello", string(ev.Data))

	require.NoError(t, in.Send([]byte("back")))
	assert.Equal(t, "back", string(nextEvent(t, out).Data))

	require.NoError(t, out.Close())
	ev = nextEvent(t, in)
	assert.Equal(t, transport.EventClose, ev.Kind)
	assert.Empty(t, ev.Reason)

	assert.ErrorIs(t, out.Send([]byte("late")), transport.ErrClosed)
	assert.ErrorIs(t, in.Send([]byte("late")), transport.ErrClosed)
}

func TestReject_CarriesReason(t *testing.T) {
	n := NewNetwork()
	a := openEndpoint(t, n, "1234")
	c := openEndpoint(t, n, "4321")

	out, err := c.Connect(context.Background(), "1234")
	require.NoError(t, err)
	assert.Equal(t, transport.EventOpen, nextEvent(t, out).Kind)

	in := accept(t, a)
	require.NoError(t, in.Reject("RoomFull"))

	ev := nextEvent(t, out)
	assert.Equal(t, transport.EventClose, ev.Kind)
	assert.Equal(t, "RoomFull", ev.Reason)
}

func TestEndpointClose_ClosesConnections(t *testing.T) {
	n := NewNetwork()
	a := openEndpoint(t, n, "1234")
	b := n.Endpoint()
	_, err := b.Open(context.Background(), "5678")
	require.NoError(t, err)

	out, err := b.Connect(context.Background(), "1234")
	require.NoError(t, err)
	nextEvent(t, out)
	in := accept(t, a)

	require.NoError(t, b.Close())
	assert.Equal(t, transport.EventClose, nextEvent(t, in).Kind)
	assert.NotContains(t, n.Registered(), "5678")

	_, err = b.Open(context.Background(), "5678")
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestSelfConnect(t *testing.T) {
	n := NewNetwork()
	a := openEndpoint(t, n, "1234")

	out, err := a.Connect(context.Background(), "1234")
	require.NoError(t, err)
	assert.Equal(t, transport.EventOpen, nextEvent(t, out).Kind)

	in := accept(t, a)
	assert.Equal(t, "1234", in.PeerID())
}
