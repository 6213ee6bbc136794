package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rudransh-shrivastava/peerdrop/internal/identity"
	"github.com/rudransh-shrivastava/peerdrop/internal/protocol"
	"github.com/rudransh-shrivastava/peerdrop/internal/session"
	"github.com/rudransh-shrivastava/peerdrop/internal/signaling"
	"github.com/rudransh-shrivastava/peerdrop/internal/store"
	"github.com/rudransh-shrivastava/peerdrop/internal/transfer"
	"github.com/rudransh-shrivastava/peerdrop/internal/transport/webrtc"
	"github.com/rudransh-shrivastava/peerdrop/internal/ui"
)

type runOptions struct {
	join     bool
	remoteID string
	sendPath string
	outDir   string
}

// run drives one session until interrupted or, when joining, until the room
// empties.
func (a *app) run(parent context.Context, opts runOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var file *transfer.File
	if opts.sendPath != "" {
		f, err := transfer.ReadFile(opts.sendPath)
		if err != nil {
			return err
		}
		file = f
	}

	outDir := opts.outDir
	if outDir == "" {
		outDir = a.cfg.OutputDir
	}

	hs, err := a.openHistory()
	if err != nil {
		a.logger.Warnf("Transfer history disabled: %v", err)
	} else {
		defer func() { _ = hs.Close() }()
	}

	sig, err := signaling.Dial(ctx, a.cfg.SignalURL, a.logger)
	if err != nil {
		return err
	}

	endpoint := webrtc.New(sig, webrtc.Options{
		Configuration: webrtc.Configuration(a.cfg.STUNServers, webrtc.TURNServer{
			URL:        a.cfg.TURNServer,
			Username:   a.cfg.TURNUser,
			Credential: a.cfg.TURNPass,
		}),
		Logger: a.logger,
	})

	provider, err := identity.New(a.cfg.IDPolicy, endpoint, a.cfg.IDDigits)
	if err != nil {
		_ = endpoint.Close()
		return err
	}

	wire, err := protocol.NewCodec(a.cfg.WireFormat())
	if err != nil {
		_ = endpoint.Close()
		return err
	}

	sink := newSessionSink(ui.NewPrinter(nil))
	mgr, err := session.New(session.Options{
		Endpoint: endpoint,
		Identity: provider,
		Wire:     wire,
		Capacity: a.cfg.Capacity,
		Sink:     sink,
		Logger:   a.logger,
	})
	if err != nil {
		_ = endpoint.Close()
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- mgr.Run(ctx) }()

	select {
	case <-mgr.Ready():
	case err := <-runErr:
		return err
	}

	localID := mgr.State().LocalID
	if opts.join {
		if _, err := mgr.Join(ctx, opts.remoteID); err != nil {
			return err
		}
		ui.PrintInfof("%s Joining %s...", ui.IconWaiting, opts.remoteID)
	} else {
		// The session announces the ID itself.
		if _, err := mgr.Create(ctx); err != nil {
			return err
		}
	}

	r := &runner{
		mgr:     mgr,
		history: hs,
		localID: localID,
		outDir:  outDir,
		file:    file,
		join:    opts.join,
	}
	return r.loop(ctx, sink, runErr)
}

func (a *app) openHistory() (*store.HistoryStore, error) {
	path := a.cfg.HistoryPath
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return store.NewHistoryStore(db), nil
}

type sender interface {
	SendSelectedFile(ctx context.Context, file *transfer.File) (int, error)
}

type runner struct {
	mgr     sender
	history *store.HistoryStore
	localID string
	outDir  string
	file    *transfer.File
	join    bool

	sent      bool
	sentRow   *store.Transfer
	connected bool
}

var errJoinFailed = errors.New("could not join the room")

func (r *runner) loop(ctx context.Context, sink *sessionSink, runErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return <-runErr

		case err := <-runErr:
			return err

		case s := <-sink.states:
			if done := r.onState(ctx, s); done {
				// A rejection is notified before the room empties.
				select {
				case n := <-sink.failures:
					return r.onFailure(ctx, n)
				default:
				}
				return nil
			}

		case n := <-sink.failures:
			if err := r.onFailure(ctx, n); err != nil {
				return err
			}

		case f := <-sink.received:
			r.save(ctx, f)
		}
	}
}

// onFailure ends a join that never got in or was turned away by a full room.
// A file sent before the rejection is dropped from the history.
func (r *runner) onFailure(ctx context.Context, n session.Notification) error {
	if !r.join {
		return nil
	}
	if n.Code != session.CodeRoomFull && r.connected {
		return nil
	}
	r.forgetSent(ctx)
	return fmt.Errorf("%w: %s", errJoinFailed, n.Message)
}

// onState reports whether the session is over.
func (r *runner) onState(ctx context.Context, s session.State) bool {
	if s.ConnectionCount == 0 {
		return r.join && r.connected
	}
	r.connected = true

	if r.file != nil && !r.sent {
		r.sent = true
		n, err := r.mgr.SendSelectedFile(ctx, r.file)
		if err != nil {
			return false
		}
		row := &store.Transfer{
			Direction: store.Sent,
			FileName:  r.file.Name,
			Size:      int64(len(r.file.Content)),
			MIMEType:  transfer.DetectMIMEType(r.file.Name, r.file.Content),
			LocalID:   r.localID,
			PeerCount: n,
		}
		if r.record(ctx, row) {
			r.sentRow = row
		}
	}
	return false
}

func (r *runner) forgetSent(ctx context.Context) {
	if r.sentRow == nil || r.history == nil {
		return
	}
	if err := r.history.Delete(ctx, r.sentRow.ID); err != nil {
		ui.PrintWarning(err.Error())
	}
	r.sentRow = nil
}

func (r *runner) save(ctx context.Context, f *transfer.DownloadableFile) {
	path, err := f.Save(r.outDir)
	if err != nil {
		ui.PrintErrorf("Saving %s: %v", f.Name, err)
		return
	}
	ui.PrintSuccessf("%s Saved %s (%s)", ui.IconFile, path, ui.FormatSize(int64(len(f.Content))))

	r.record(ctx, &store.Transfer{
		Direction: store.Received,
		FileName:  f.Name,
		Size:      int64(len(f.Content)),
		MIMEType:  f.MIMEType,
		LocalID:   r.localID,
		PeerCount: 1,
	})
}

func (r *runner) record(ctx context.Context, t *store.Transfer) bool {
	if r.history == nil {
		return false
	}
	if err := r.history.Record(ctx, t); err != nil {
		ui.PrintWarning(err.Error())
		return false
	}
	return true
}
