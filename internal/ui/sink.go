package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/rudransh-shrivastava/peerdrop/internal/session"
)

// Printer renders session notifications and peer count changes.
type Printer struct {
	out io.Writer

	mu    sync.Mutex
	count int
}

var _ session.Sink = (*Printer)(nil)

func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = Out
	}
	return &Printer{out: out}
}

func (p *Printer) Notify(n session.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n.Kind == session.KindError {
		fmt.Fprintf(p.out, "%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(n.Message))
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconInfo, n.Message)
}

func (p *Printer) StateChanged(s session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.ConnectionCount == p.count {
		return
	}
	p.count = s.ConnectionCount
	fmt.Fprintf(p.out, "%s %s\n", IconPeer, MutedStyle.Render(fmt.Sprintf("Peers connected: %d", s.ConnectionCount)))
}
