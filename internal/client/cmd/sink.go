package cmd

import (
	"github.com/rudransh-shrivastava/peerdrop/internal/session"
	"github.com/rudransh-shrivastava/peerdrop/internal/transfer"
	"github.com/rudransh-shrivastava/peerdrop/internal/ui"
)

// sessionSink prints everything and forwards what the runner acts on. It is
// only called from the session loop, so the channels have a single writer.
type sessionSink struct {
	printer  *ui.Printer
	states   chan session.State
	failures chan session.Notification
	received chan *transfer.DownloadableFile

	last *transfer.DownloadableFile
}

func newSessionSink(printer *ui.Printer) *sessionSink {
	return &sessionSink{
		printer:  printer,
		states:   make(chan session.State, 32),
		failures: make(chan session.Notification, 8),
		received: make(chan *transfer.DownloadableFile, 16),
	}
}

func (s *sessionSink) Notify(n session.Notification) {
	s.printer.Notify(n)

	if n.Kind != session.KindError {
		return
	}
	switch n.Code {
	case session.CodeRoomFull, session.CodeTransportError:
		select {
		case s.failures <- n:
		default:
		}
	}
}

func (s *sessionSink) StateChanged(st session.State) {
	s.printer.StateChanged(st)

	if f := st.LastReceivedFile; f != nil && f != s.last {
		s.last = f
		select {
		case s.received <- f:
		default:
		}
	}

	// Drop the oldest state rather than block the session loop.
	for {
		select {
		case s.states <- st:
			return
		default:
		}
		select {
		case <-s.states:
		default:
		}
	}
}
