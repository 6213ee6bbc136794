package session_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudransh-shrivastava/peerdrop/internal/identity"
	"github.com/rudransh-shrivastava/peerdrop/internal/logger"
	"github.com/rudransh-shrivastava/peerdrop/internal/session"
	"github.com/rudransh-shrivastava/peerdrop/internal/signaling"
	"github.com/rudransh-shrivastava/peerdrop/internal/transfer"
	rtc "github.com/rudransh-shrivastava/peerdrop/internal/transport/webrtc"
)

// network runs a signaling server and session managers wired to it over
// WebRTC endpoints, the way the CLI wires them.
type network struct {
	t      *testing.T
	ctx    context.Context
	cancel context.CancelFunc
	server *signaling.Server
}

func newNetwork(t *testing.T) *network {
	t.Helper()

	srv, err := signaling.NewServer(signaling.Config{Addr: "127.0.0.1:0", Logger: logger.NewDiscard()})
	if err != nil {
		t.Fatalf("Failed to create signaling server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	go func() { _ = srv.Start(ctx) }()
	t.Cleanup(cancel)

	return &network{t: t, ctx: ctx, cancel: cancel, server: srv}
}

type stackPeer struct {
	*session.Manager
	sink *notes
}

func (n *network) newPeer(policy string, capacity int) stackPeer {
	n.t.Helper()

	sig, err := signaling.Dial(n.ctx, n.server.URL(), logger.NewDiscard())
	require.NoError(n.t, err)

	endpoint := rtc.New(sig, rtc.Options{
		Configuration: webrtc.Configuration{},
		OpenTimeout:   15 * time.Second,
		Logger:        logger.NewDiscard(),
	})

	provider, err := identity.New(policy, endpoint, identity.DefaultDigits)
	require.NoError(n.t, err)

	sink := &notes{}
	mgr, err := session.New(session.Options{
		Endpoint: endpoint,
		Identity: provider,
		Capacity: capacity,
		Sink:     sink,
		Logger:   logger.NewDiscard(),
	})
	require.NoError(n.t, err)

	go func() { _ = mgr.Run(n.ctx) }()

	select {
	case <-mgr.Ready():
	case <-time.After(5 * time.Second):
		n.t.Fatal("manager never became ready")
	}
	return stackPeer{Manager: mgr, sink: sink}
}

type notes struct {
	mu  sync.Mutex
	all []session.Notification
}

func (s *notes) Notify(n session.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, n)
}

func (s *notes) StateChanged(session.State) {}

func (s *notes) has(code session.Code, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.all {
		if n.Code == code && (message == "" || n.Message == message) {
			return true
		}
	}
	return false
}

func TestStack_IdentifiersFromSignaling(t *testing.T) {
	n := newNetwork(t)

	a := n.newPeer(identity.PolicyNumeric, 0)
	b := n.newPeer(identity.PolicyAssigned, 0)

	aID := a.State().LocalID
	assert.Len(t, aID, identity.DefaultDigits)
	assert.NotEmpty(t, b.State().LocalID)
	assert.NotEqual(t, aID, b.State().LocalID)

	assert.Eventually(t, func() bool { return n.server.Hub().Count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestStack_TransferOverWebRTC(t *testing.T) {
	if os.Getenv("PEERDROP_WEBRTC_E2E") == "" {
		t.Skip("set PEERDROP_WEBRTC_E2E=1 to run")
	}

	n := newNetwork(t)
	a := n.newPeer(identity.PolicyNumeric, 1)
	b := n.newPeer(identity.PolicyNumeric, 1)
	c := n.newPeer(identity.PolicyNumeric, 1)

	roomID, err := a.Create(n.ctx)
	require.NoError(t, err)

	_, err = b.Join(n.ctx, roomID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return a.State().ConnectionCount == 1 && b.State().ConnectionCount == 1
	}, 15*time.Second, 50*time.Millisecond)

	sent, err := b.SendSelectedFile(n.ctx, &transfer.File{Name: "report.pdf", Content: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Eventually(t, func() bool {
		f := a.State().LastReceivedFile
		return f != nil && f.Name == "report.pdf" && string(f.Content) == "hello"
	}, 5*time.Second, 50*time.Millisecond)

	_, err = c.Join(n.ctx, roomID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return c.sink.has(session.CodeRoomFull, "") }, 15*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, a.State().ConnectionCount)
	assert.Equal(t, 0, c.State().ConnectionCount)
}

func TestStack_LargeFileOverWebRTC(t *testing.T) {
	if os.Getenv("PEERDROP_WEBRTC_E2E") == "" {
		t.Skip("set PEERDROP_WEBRTC_E2E=1 to run")
	}

	n := newNetwork(t)
	a := n.newPeer(identity.PolicyNumeric, 1)
	b := n.newPeer(identity.PolicyNumeric, 1)

	roomID, err := a.Create(n.ctx)
	require.NoError(t, err)
	_, err = b.Join(n.ctx, roomID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return a.State().ConnectionCount == 1 && b.State().ConnectionCount == 1
	}, 15*time.Second, 50*time.Millisecond)

	for _, size := range []int{40 << 10, 100 << 10, 1 << 20} {
		content := make([]byte, size)
		_, err := rand.Read(content)
		require.NoError(t, err)
		name := fmt.Sprintf("blob-%d.bin", size)

		sent, err := b.SendSelectedFile(n.ctx, &transfer.File{Name: name, Content: content})
		require.NoError(t, err)
		assert.Equal(t, 1, sent)

		require.Eventually(t, func() bool {
			f := a.State().LastReceivedFile
			return f != nil && f.Name == name && bytes.Equal(f.Content, content)
		}, 15*time.Second, 50*time.Millisecond, "%d byte file never arrived", size)
	}
	assert.False(t, b.sink.has(session.CodeTransportError, ""))
}
