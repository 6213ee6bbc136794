package transport

import "sync"

type EventKind int

const (
	EventOpen EventKind = iota
	EventData
	EventClose
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventData:
		return "data"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

func (k EventKind) Terminal() bool {
	return k == EventClose || k == EventError
}

type Event struct {
	Kind EventKind
	Data []byte
	// Reason is set on a close the remote side explained, see Conn.Reject.
	Reason string
	Err    error
}

// EventQueue buffers connection events without ever blocking the producer.
// It keeps the open/data/terminal ordering: a second open and anything after
// the terminal event are dropped.
type EventQueue struct {
	mu       sync.Mutex
	pending  []Event
	opened   bool
	finished bool

	wake     chan struct{}
	out      chan Event
	stop     chan struct{}
	stopOnce sync.Once
}

func NewEventQueue() *EventQueue {
	q := &EventQueue{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		stop: make(chan struct{}),
	}
	go q.pump()
	return q
}

// Emit queues ev and reports whether it was accepted.
func (q *EventQueue) Emit(ev Event) bool {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return false
	}
	switch {
	case ev.Kind == EventOpen:
		if q.opened {
			q.mu.Unlock()
			return false
		}
		q.opened = true
	case ev.Kind.Terminal():
		q.finished = true
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Finished reports whether a terminal event has been queued.
func (q *EventQueue) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finished
}

func (q *EventQueue) Events() <-chan Event {
	return q.out
}

// Stop abandons undelivered events and closes the output channel.
func (q *EventQueue) Stop() {
	q.stopOnce.Do(func() { close(q.stop) })
}

func (q *EventQueue) pump() {
	defer close(q.out)

	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, ev := range batch {
			select {
			case q.out <- ev:
			case <-q.stop:
				return
			}
			if ev.Kind.Terminal() {
				return
			}
		}

		select {
		case <-q.wake:
		case <-q.stop:
			return
		}
	}
}
