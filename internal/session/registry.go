package session

import "sync"

const DefaultCapacity = 2

// Registry holds the admitted connections, at most capacity of them.
// Admit and Remove are the only mutations, and each is atomic.
type Registry struct {
	mu       sync.Mutex
	capacity int
	conns    []*PeerConnection
}

func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{capacity: capacity}
}

func (r *Registry) Capacity() int {
	return r.capacity
}

// Admit adds pc if there is room. The capacity check and the insert happen
// under one lock.
func (r *Registry) Admit(pc *PeerConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.conns) >= r.capacity {
		return ErrRoomFull
	}
	r.conns = append(r.conns, pc)
	return nil
}

// Remove drops the connection with the given local ID. Remote identifiers
// are not unique, so removal goes by local ID.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, pc := range r.conns {
		if pc.ID == id {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *Registry) Full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns) >= r.capacity
}

// Connections returns the admitted connections in admission order.
func (r *Registry) Connections() []*PeerConnection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*PeerConnection, len(r.conns))
	copy(out, r.conns)
	return out
}
