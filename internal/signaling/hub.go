package signaling

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Hub owns the identifier namespace. All state is touched only by Run.
type Hub struct {
	peers      map[string]*peer
	unregister chan *peer
	inbound    chan *Message
	done       chan struct{}

	count   atomic.Int64
	metrics *Metrics
	logger  *logrus.Logger
}

func NewHub(metrics *Metrics, logger *logrus.Logger) *Hub {
	return &Hub{
		peers:      make(map[string]*peer),
		unregister: make(chan *peer),
		inbound:    make(chan *Message),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     logger,
	}
}

// Count is the number of registered peers.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, p := range h.peers {
				h.drop(p)
			}
			return

		case p := <-h.unregister:
			h.drop(p)

		case msg := <-h.inbound:
			h.handle(msg)
		}
	}
}

func (h *Hub) handle(msg *Message) {
	p := msg.peer
	if p.closed {
		return
	}

	switch msg.Type {
	case TypeRegister:
		h.register(p, msg.ID)
	case TypeSignal:
		h.relay(p, msg)
	default:
		h.logger.Warnf("Unhandled message type %q from %s", msg.Type, p.id)
	}
}

func (h *Hub) register(p *peer, id string) {
	if p.id != "" {
		h.reject(p, "already_registered", &Message{Type: TypeError, ID: id, Error: errRegistered})
		return
	}

	if id == "" {
		for {
			id = uuid.NewString()
			if _, taken := h.peers[id]; !taken {
				break
			}
		}
	}

	if _, taken := h.peers[id]; taken {
		h.reject(p, "id_taken", &Message{Type: TypeError, ID: id, Error: errIDTaken})
		return
	}

	p.id = id
	h.peers[id] = p
	h.count.Add(1)
	h.metrics.Peers.Inc()
	h.logger.Infof("Peer registered: %s", id)

	h.deliver(p, &Message{Type: TypeRegistered, ID: id})
}

func (h *Hub) relay(p *peer, msg *Message) {
	if p.id == "" {
		h.reject(p, "not_registered", &Message{Type: TypeError, Error: errNotRegistered})
		return
	}

	target, ok := h.peers[msg.To]
	if !ok {
		h.reject(p, "peer_unavailable", &Message{
			Type:    TypeError,
			From:    msg.To,
			Payload: msg.Payload,
			Error:   errPeerUnavailable,
		})
		return
	}

	h.deliver(target, &Message{Type: TypeSignal, From: p.id, To: msg.To, Payload: msg.Payload})
	h.metrics.Relayed.Inc()
}

func (h *Hub) reject(p *peer, reason string, reply *Message) {
	h.metrics.Rejections.WithLabelValues(reason).Inc()
	h.logger.Debugf("Rejected request from %q: %s", p.id, reason)
	h.deliver(p, reply)
}

func (h *Hub) deliver(p *peer, msg *Message) {
	if p.closed {
		return
	}
	select {
	case p.send <- msg:
	default:
		h.logger.Warnf("Dropping %s message for %s: send buffer full", msg.Type, p.id)
	}
}

func (h *Hub) drop(p *peer) {
	if p.closed {
		return
	}
	p.closed = true
	if p.id != "" && h.peers[p.id] == p {
		delete(h.peers, p.id)
		h.count.Add(-1)
		h.metrics.Peers.Dec()
		h.logger.Infof("Peer unregistered: %s", p.id)
	}
	close(p.send)
}
