// Package webrtc implements transport.Endpoint over WebRTC data channels,
// negotiated through a transport.Signaler.
package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peerdrop/internal/logger"
	"github.com/rudransh-shrivastava/peerdrop/internal/transport"
)

const DefaultOpenTimeout = 30 * time.Second

var errOpenTimeout = errors.New("data channel did not open in time")

type Options struct {
	Configuration webrtc.Configuration
	DataChannel   *webrtc.DataChannelInit
	OpenTimeout   time.Duration
	Logger        *logrus.Logger
}

type Endpoint struct {
	signaler transport.Signaler
	opts     Options
	logger   *logrus.Logger
	incoming chan transport.Conn

	mu     sync.Mutex
	id     string
	conns  map[string]*conn
	closed bool
}

var _ transport.Endpoint = (*Endpoint)(nil)

func New(signaler transport.Signaler, opts Options) *Endpoint {
	if opts.DataChannel == nil {
		opts.DataChannel = DefaultDataChannelConfig()
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger()
	}

	return &Endpoint{
		signaler: signaler,
		opts:     opts,
		logger:   opts.Logger,
		incoming: make(chan transport.Conn, 16),
		conns:    make(map[string]*conn),
	}
}

func (e *Endpoint) Open(ctx context.Context, id string) (string, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", transport.ErrClosed
	}
	if e.id != "" {
		id := e.id
		e.mu.Unlock()
		return id, nil
	}
	e.mu.Unlock()

	assigned, err := e.signaler.Register(ctx, id)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.id = assigned
	e.mu.Unlock()

	go e.handleSignals()
	return assigned, nil
}

func (e *Endpoint) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

func (e *Endpoint) Connect(ctx context.Context, remoteID string) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.ID() == "" {
		return nil, transport.ErrNotOpen
	}

	pc, err := webrtc.NewPeerConnection(e.opts.Configuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	c := newConn(e, remoteID, uuid.NewString(), pc, true)
	dc, err := pc.CreateDataChannel("data", e.opts.DataChannel)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}
	c.attach(dc)

	if !e.track(c) {
		_ = pc.Close()
		return nil, transport.ErrClosed
	}

	go c.offer()
	return c, nil
}

func (e *Endpoint) Incoming() <-chan transport.Conn {
	return e.incoming
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conns := make([]*conn, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.conns = make(map[string]*conn)
	close(e.incoming)
	e.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return e.signaler.Close()
}

func (e *Endpoint) handleSignals() {
	for sig := range e.signaler.RecvSignal() {
		s, err := parseSignal(sig.Payload)
		if err != nil {
			e.logger.Warnf("Ignoring signal from %s: %v", sig.PeerID, err)
			continue
		}

		key := connKey(sig.PeerID, s.Conn)
		if sig.Err != nil {
			if c := e.lookup(key); c != nil {
				c.fail(sig.Err)
			}
			continue
		}

		switch s.Type {
		case signalOffer:
			e.accept(sig.PeerID, s)
		case signalAnswer:
			c := e.lookup(key)
			if c == nil {
				e.logger.Debugf("Answer for unknown connection %s", key)
				continue
			}
			go c.setAnswer(s.SDP)
		}
	}
	e.logger.Debug("Signaling channel closed")
}

func (e *Endpoint) accept(remoteID string, s signal) {
	if e.lookup(connKey(remoteID, s.Conn)) != nil {
		e.logger.Debugf("Duplicate offer for %s/%s", remoteID, s.Conn)
		return
	}

	pc, err := webrtc.NewPeerConnection(e.opts.Configuration)
	if err != nil {
		e.logger.Errorf("Failed to create peer connection for %s: %v", remoteID, err)
		return
	}

	c := newConn(e, remoteID, s.Conn, pc, false)
	pc.OnDataChannel(c.attach)
	if !e.track(c) {
		_ = pc.Close()
		return
	}

	go c.answer(s.SDP)
}

// deliver hands an inbound connection to Incoming once its channel is open.
func (e *Endpoint) deliver(c *conn) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		go func() { _ = c.Close() }()
		return
	}
	select {
	case e.incoming <- c:
	default:
		e.logger.Warnf("Incoming queue full, dropping connection from %s", c.peerID)
		go func() { _ = c.Close() }()
	}
}

func (e *Endpoint) track(c *conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.conns[c.key] = c
	return true
}

func (e *Endpoint) untrack(c *conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conns[c.key] == c {
		delete(e.conns, c.key)
	}
}

func (e *Endpoint) lookup(key string) *conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns[key]
}
