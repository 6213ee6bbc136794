package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudransh-shrivastava/peerdrop/internal/logger"
	"github.com/rudransh-shrivastava/peerdrop/internal/session"
	"github.com/rudransh-shrivastava/peerdrop/internal/signaling"
	"github.com/rudransh-shrivastava/peerdrop/internal/store"
	"github.com/rudransh-shrivastava/peerdrop/internal/transfer"
	"github.com/rudransh-shrivastava/peerdrop/internal/ui"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := ui.Out
	ui.Out = &buf
	t.Cleanup(func() { ui.Out = prev })
	return &buf
}

type fakeSender struct {
	calls int
	n     int
	err   error
}

func (f *fakeSender) SendSelectedFile(context.Context, *transfer.File) (int, error) {
	f.calls++
	return f.n, f.err
}

func openTestHistory(t *testing.T) *store.HistoryStore {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	hs := store.NewHistoryStore(db)
	t.Cleanup(func() { _ = hs.Close() })
	return hs
}

func TestSessionSink_ForwardsJoinFailures(t *testing.T) {
	captureOutput(t)
	sink := newSessionSink(ui.NewPrinter(&bytes.Buffer{}))

	sink.Notify(session.Notification{Kind: session.KindInfo, Message: "File sent!"})
	sink.Notify(session.Notification{Kind: session.KindError, Code: session.CodeNotConnected, Message: "Not connected to any peer."})
	sink.Notify(session.Notification{Kind: session.KindError, Code: session.CodeRoomFull, Message: "Room is full!"})

	require.Len(t, sink.failures, 1)
	assert.Equal(t, session.CodeRoomFull, (<-sink.failures).Code)
}

func TestSessionSink_ReceivedOncePerFile(t *testing.T) {
	sink := newSessionSink(ui.NewPrinter(&bytes.Buffer{}))
	f := &transfer.DownloadableFile{Name: "report.pdf", Content: []byte("hello")}

	sink.StateChanged(session.State{ConnectionCount: 1, LastReceivedFile: f})
	sink.StateChanged(session.State{ConnectionCount: 1, LastReceivedFile: f})

	assert.Len(t, sink.received, 1)
	assert.Len(t, sink.states, 2)
}

func TestSessionSink_StatesNeverBlock(t *testing.T) {
	sink := newSessionSink(ui.NewPrinter(&bytes.Buffer{}))

	for i := 0; i < 100; i++ {
		sink.StateChanged(session.State{ConnectionCount: i % 3})
	}
	assert.Len(t, sink.states, cap(sink.states))
}

func TestRunner_SendsOnceOnConnect(t *testing.T) {
	s := &fakeSender{n: 1}
	hs := openTestHistory(t)
	r := &runner{
		mgr:     s,
		history: hs,
		localID: "1234",
		file:    &transfer.File{Name: "notes.txt", Content: []byte("hi")},
	}

	assert.False(t, r.onState(context.Background(), session.State{ConnectionCount: 0}))
	assert.Equal(t, 0, s.calls)

	assert.False(t, r.onState(context.Background(), session.State{ConnectionCount: 1}))
	assert.False(t, r.onState(context.Background(), session.State{ConnectionCount: 2}))
	assert.Equal(t, 1, s.calls)

	transfers, err := hs.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, store.Sent, transfers[0].Direction)
	assert.Equal(t, "notes.txt", transfers[0].FileName)
	assert.Equal(t, 1, transfers[0].PeerCount)
}

func TestRunner_JoinEndsWhenRoomEmpties(t *testing.T) {
	r := &runner{mgr: &fakeSender{}, join: true}

	assert.False(t, r.onState(context.Background(), session.State{ConnectionCount: 0}))
	assert.False(t, r.onState(context.Background(), session.State{ConnectionCount: 1}))
	assert.True(t, r.onState(context.Background(), session.State{ConnectionCount: 0}))
}

func TestRunner_RejectedJoinFailsAndForgetsSend(t *testing.T) {
	captureOutput(t)
	s := &fakeSender{n: 1}
	hs := openTestHistory(t)
	r := &runner{
		mgr:     s,
		history: hs,
		localID: "1234",
		file:    &transfer.File{Name: "notes.txt", Content: []byte("hi")},
		join:    true,
	}

	// The channel opens and the file goes out before the host turns us away.
	require.False(t, r.onState(context.Background(), session.State{ConnectionCount: 1}))
	require.Equal(t, 1, s.calls)

	sink := newSessionSink(ui.NewPrinter(&bytes.Buffer{}))
	sink.Notify(session.Notification{Kind: session.KindError, Code: session.CodeRoomFull, Message: "Room is full!"})
	sink.StateChanged(session.State{ConnectionCount: 0})

	err := r.loop(context.Background(), sink, make(chan error))
	assert.ErrorIs(t, err, errJoinFailed)

	transfers, err := hs.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestRunner_OnFailure(t *testing.T) {
	roomFull := session.Notification{Kind: session.KindError, Code: session.CodeRoomFull, Message: "Room is full!"}
	transportErr := session.Notification{Kind: session.KindError, Code: session.CodeTransportError, Message: "Failed to connect. Please check the connection ID."}

	tests := []struct {
		name      string
		join      bool
		connected bool
		n         session.Notification
		wantErr   bool
	}{
		{"join rejected before open", true, false, roomFull, true},
		{"join rejected after open", true, true, roomFull, true},
		{"join could not connect", true, false, transportErr, true},
		{"join transport error once in", true, true, transportErr, false},
		{"host turns a peer away", false, true, roomFull, false},
		{"host transport error", false, false, transportErr, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &runner{mgr: &fakeSender{}, join: tt.join, connected: tt.connected}
			err := r.onFailure(context.Background(), tt.n)
			if tt.wantErr {
				assert.ErrorIs(t, err, errJoinFailed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunner_CreateKeepsRunning(t *testing.T) {
	r := &runner{mgr: &fakeSender{}}

	r.onState(context.Background(), session.State{ConnectionCount: 1})
	assert.False(t, r.onState(context.Background(), session.State{ConnectionCount: 0}))
}

func TestRunner_SaveRecordsHistory(t *testing.T) {
	captureOutput(t)
	hs := openTestHistory(t)
	r := &runner{history: hs, localID: "1234", outDir: t.TempDir()}

	r.save(context.Background(), &transfer.DownloadableFile{
		Name:     "report.pdf",
		MIMEType: "application/pdf",
		Content:  []byte("hello"),
	})

	assert.FileExists(t, filepath.Join(r.outDir, "report.pdf"))

	transfers, err := hs.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, store.Received, transfers[0].Direction)
	assert.Equal(t, int64(5), transfers[0].Size)
}

func TestHistoryCommand(t *testing.T) {
	out := captureOutput(t)
	path := filepath.Join(t.TempDir(), "nested", "history.sqlite3")

	root := NewRootCmd()
	root.SetArgs([]string{"history", "--history", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "No transfers yet")

	seed, err := store.Open(path)
	require.NoError(t, err)
	hs := store.NewHistoryStore(seed)
	require.NoError(t, hs.Record(context.Background(), &store.Transfer{Direction: store.Sent, FileName: "notes.txt", Size: 2}))
	require.NoError(t, hs.Close())

	out.Reset()
	root = NewRootCmd()
	root.SetArgs([]string{"history", "--history", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "notes.txt")

	out.Reset()
	root = NewRootCmd()
	root.SetArgs([]string{"history", "--history", path, "--clear"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "History cleared")
}

// syncBuffer lets the session loop print while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCreateCommand_AnnouncesIDOnce(t *testing.T) {
	out := &syncBuffer{}
	prev := ui.Out
	ui.Out = out
	t.Cleanup(func() { ui.Out = prev })

	srv, err := signaling.NewServer(signaling.Config{Addr: "127.0.0.1:0", Logger: logger.NewDiscard()})
	require.NoError(t, err)
	srvCtx, stopServer := context.WithCancel(context.Background())
	t.Cleanup(stopServer)
	go func() { _ = srv.Start(srvCtx) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := NewRootCmd()
	root.SetArgs([]string{
		"create",
		"--signal-url", srv.URL(),
		"--history", filepath.Join(t.TempDir(), "h.sqlite3"),
		"--log-level", "error",
	})
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Share this ID with the recipient: ")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			assert.True(t, errors.Is(err, context.Canceled), "unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("create did not stop after cancellation")
	}

	assert.Equal(t, 1, strings.Count(out.String(), "Share this ID"))
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"history", "--format", "xml", "--history", filepath.Join(t.TempDir(), "h.sqlite3")})
	assert.Error(t, root.Execute())
}
