package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/peerdrop/internal/transport"
)

type ConnState int

const (
	StatePending ConnState = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s ConnState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

func (s ConnState) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// PeerConnection is one channel to a remote instance, established or being
// established.
type PeerConnection struct {
	ID        string
	RemoteID  string
	Direction Direction

	conn transport.Conn

	mu       sync.Mutex
	state    ConnState
	openedAt time.Time
}

// ConnInfo is a point-in-time copy of a PeerConnection.
type ConnInfo struct {
	ID        string
	RemoteID  string
	Direction Direction
	State     ConnState
	OpenedAt  time.Time
}

func newPeerConnection(conn transport.Conn, remoteID string, dir Direction) *PeerConnection {
	return &PeerConnection{
		ID:        uuid.NewString(),
		RemoteID:  remoteID,
		Direction: dir,
		conn:      conn,
		state:     StatePending,
	}
}

func (pc *PeerConnection) State() ConnState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state
}

// transition moves to next unless the connection already reached a terminal
// state. It reports whether the state changed.
func (pc *PeerConnection) transition(next ConnState) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.state.Terminal() || pc.state == next {
		return false
	}
	pc.state = next
	if next == StateOpen {
		pc.openedAt = time.Now()
	}
	return true
}

func (pc *PeerConnection) Info() ConnInfo {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	return ConnInfo{
		ID:        pc.ID,
		RemoteID:  pc.RemoteID,
		Direction: pc.Direction,
		State:     pc.state,
		OpenedAt:  pc.openedAt,
	}
}
