package session

import "sync"

// mailbox is an unbounded FIFO feeding the session loop. push never blocks,
// so transport callbacks and the loop itself can always enqueue.
type mailbox struct {
	mu     sync.Mutex
	items  []event
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (b *mailbox) push(ev event) {
	b.mu.Lock()
	b.items = append(b.items, ev)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *mailbox) drain() []event {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.items
	b.items = nil
	return items
}

func (b *mailbox) ready() <-chan struct{} {
	return b.signal
}
