// Package session runs a two-peer file drop session: it admits connections
// up to the room capacity, delivers files to every open peer and reports
// everything user-facing to a Sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rudransh-shrivastava/peerdrop/internal/identity"
	"github.com/rudransh-shrivastava/peerdrop/internal/logger"
	"github.com/rudransh-shrivastava/peerdrop/internal/protocol"
	"github.com/rudransh-shrivastava/peerdrop/internal/transfer"
	"github.com/rudransh-shrivastava/peerdrop/internal/transport"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Endpoint transport.Endpoint
	// Identity defaults to a 4-digit numeric identifier registered on Endpoint.
	Identity identity.Provider
	// Codec defaults to the data URL codec.
	Codec transfer.Codec
	// Wire defaults to JSON.
	Wire     *protocol.Codec
	Capacity int
	Sink     Sink
	Logger   *logrus.Logger
}

// Manager owns the session state. Every mutation runs on the goroutine that
// called Run, one event at a time.
type Manager struct {
	endpoint transport.Endpoint
	identity identity.Provider
	codec    transfer.Codec
	wire     *protocol.Codec
	sink     Sink
	logger   *logrus.Logger

	registry *Registry
	// conns tracks pending and open connections by local ID. Loop only.
	conns map[string]*PeerConnection

	box     *mailbox
	ready   chan struct{}
	stopped chan struct{}
	started atomic.Bool

	mu    sync.RWMutex
	state State
}

func New(opts Options) (*Manager, error) {
	if opts.Endpoint == nil {
		return nil, errors.New("session: endpoint is required")
	}
	if opts.Identity == nil {
		opts.Identity = identity.NewNumeric(opts.Endpoint, identity.DefaultDigits)
	}
	if opts.Codec == nil {
		opts.Codec = transfer.NewDataURLCodec()
	}
	if opts.Wire == nil {
		wire, err := protocol.NewCodec(protocol.FormatJSON)
		if err != nil {
			return nil, err
		}
		opts.Wire = wire
	}
	if opts.Sink == nil {
		opts.Sink = discardSink{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger()
	}

	return &Manager{
		endpoint: opts.Endpoint,
		identity: opts.Identity,
		codec:    opts.Codec,
		wire:     opts.Wire,
		sink:     opts.Sink,
		logger:   opts.Logger,
		registry: NewRegistry(opts.Capacity),
		conns:    make(map[string]*PeerConnection),
		box:      newMailbox(),
		ready:    make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Run registers the local identifier and then processes events until ctx is
// done, at which point every connection and the endpoint are closed.
func (m *Manager) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("session: already running")
	}
	defer close(m.stopped)

	id, err := m.identity.Obtain(ctx)
	if err != nil {
		m.logger.Errorf("Failed to obtain identifier: %v", err)
		_ = m.endpoint.Close()
		return fmt.Errorf("obtain identifier: %w", err)
	}

	m.mu.Lock()
	m.state.LocalID = id
	m.mu.Unlock()
	close(m.ready)

	m.logger.Infof("Registered as %s", id)
	m.publish()

	go m.acceptLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-m.box.ready():
			for _, ev := range m.box.drain() {
				m.handle(ev)
			}
		}
	}
}

// Ready is closed once the local identifier is confirmed.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Create waits for the local identifier, announces it and returns it.
func (m *Manager) Create(ctx context.Context) (string, error) {
	reply := make(chan string, 1)
	m.box.push(createEvent{reply: reply})
	return await(ctx, m, reply)
}

// Join starts an outbound connection to remoteID. It fails without touching
// the registry when the identifier is blank or the room is already full.
// The returned connection is still pending.
func (m *Manager) Join(ctx context.Context, remoteID string) (ConnInfo, error) {
	reply := make(chan connectResult, 1)
	m.box.push(connectEvent{ctx: ctx, remoteID: remoteID, reply: reply})

	res, err := await(ctx, m, reply)
	if err != nil {
		return ConnInfo{}, err
	}
	return res.info, res.err
}

// SendSelectedFile delivers file to every open connection and returns how
// many accepted it. A nil file means nothing was selected.
func (m *Manager) SendSelectedFile(ctx context.Context, file *transfer.File) (int, error) {
	reply := make(chan sendResult, 1)
	m.box.push(sendRequestedEvent{file: file, reply: reply})

	res, err := await(ctx, m, reply)
	if err != nil {
		return 0, err
	}
	return res.recipients, res.err
}

// Disconnect closes every connection, pending ones included.
func (m *Manager) Disconnect(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	m.box.push(disconnectEvent{reply: reply})

	_, err := await(ctx, m, reply)
	return err
}

func (m *Manager) State() State {
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()

	st.ConnectionCount = m.registry.Len()
	return st
}

// Connections returns the admitted connections.
func (m *Manager) Connections() []ConnInfo {
	conns := m.registry.Connections()
	out := make([]ConnInfo, 0, len(conns))
	for _, pc := range conns {
		out = append(out, pc.Info())
	}
	return out
}

func await[T any](ctx context.Context, m *Manager, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-m.stopped:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrStopped
		}
	}
}

func (m *Manager) acceptLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case conn, ok := <-m.endpoint.Incoming():
			if !ok {
				return
			}
			m.box.push(incomingEvent{conn: conn})
		}
	}
}

// watch forwards one connection's transport events into the mailbox. A
// single goroutine per connection keeps them in order.
func (m *Manager) watch(pc *PeerConnection) {
	for ev := range pc.conn.Events() {
		switch ev.Kind {
		case transport.EventOpen:
			m.box.push(openEvent{connID: pc.ID})
		case transport.EventData:
			m.box.push(dataEvent{connID: pc.ID, data: ev.Data})
		case transport.EventClose:
			m.box.push(closeEvent{connID: pc.ID, reason: ev.Reason})
		case transport.EventError:
			m.box.push(errorEvent{connID: pc.ID, err: ev.Err})
		}
	}
}

func (m *Manager) handle(ev event) {
	m.logger.Debugf("Handling %s event", ev.eventName())

	switch e := ev.(type) {
	case createEvent:
		m.handleCreate(e)
	case connectEvent:
		m.handleConnect(e)
	case incomingEvent:
		m.handleIncoming(e)
	case openEvent:
		m.handleOpen(e)
	case dataEvent:
		m.handleData(e)
	case closeEvent:
		m.handleClose(e)
	case errorEvent:
		m.handleError(e)
	case sendRequestedEvent:
		m.handleSendRequested(e)
	case encodedEvent:
		m.handleEncoded(e)
	case disconnectEvent:
		m.handleDisconnect(e)
	default:
		m.logger.Warnf("Unknown event %T", ev)
	}
}

func (m *Manager) handleCreate(e createEvent) {
	id := m.State().LocalID
	m.notify(KindInfo, CodeNone, msgShareID+id)
	e.reply <- id
}

func (m *Manager) handleConnect(e connectEvent) {
	// The caller gave up while the event was queued.
	if err := e.ctx.Err(); err != nil {
		e.reply <- connectResult{err: err}
		return
	}

	remoteID := strings.TrimSpace(e.remoteID)
	if remoteID == "" {
		e.reply <- connectResult{err: m.fail("join", CodeInvalidIdentifier, ErrInvalidIdentifier, msgInvalidID)}
		return
	}
	if m.registry.Full() {
		e.reply <- connectResult{err: m.fail("join", CodeRoomFull, ErrRoomFull, msgRoomFull)}
		return
	}

	conn, err := m.endpoint.Connect(e.ctx, remoteID)
	if err != nil {
		m.logger.Errorf("Error joining connection %s: %v", remoteID, err)
		e.reply <- connectResult{err: m.fail("join", CodeTransportError, fmt.Errorf("%w: %w", ErrTransport, err), msgConnectFailed)}
		return
	}

	pc := newPeerConnection(conn, remoteID, Outbound)
	m.conns[pc.ID] = pc
	go m.watch(pc)

	m.logger.WithField("conn", pc.ID).Infof("Connecting to %s", remoteID)
	e.reply <- connectResult{info: pc.Info()}
}

func (m *Manager) handleIncoming(e incomingEvent) {
	pc := newPeerConnection(e.conn, e.conn.PeerID(), Inbound)

	if err := m.registry.Admit(pc); err != nil {
		pc.transition(StateClosed)
		m.logger.Warnf("Rejecting connection from %s: %v", pc.RemoteID, err)
		if err := e.conn.Reject(string(CodeRoomFull)); err != nil {
			m.logger.Debugf("Reject %s: %v", pc.RemoteID, err)
		}
		m.notify(KindError, CodeRoomFull, msgRoomFull)
		return
	}

	pc.transition(StateOpen)
	m.conns[pc.ID] = pc
	go m.watch(pc)

	m.logger.WithField("conn", pc.ID).Infof("Accepted connection from %s", pc.RemoteID)
	m.publish()
}

func (m *Manager) handleOpen(e openEvent) {
	pc, ok := m.conns[e.connID]
	if !ok || pc.State() != StatePending {
		return
	}

	// Inbound connections may have filled the room since Join.
	if err := m.registry.Admit(pc); err != nil {
		m.logger.Warnf("Closing connection to %s: %v", pc.RemoteID, err)
		m.drop(pc, StateClosed)
		m.notify(KindError, CodeRoomFull, msgRoomFull)
		return
	}

	pc.transition(StateOpen)
	m.logger.WithField("conn", pc.ID).Infof("Connected to %s", pc.RemoteID)
	m.notify(KindInfo, CodeNone, msgConnected)
	m.publish()
}

func (m *Manager) handleData(e dataEvent) {
	pc, ok := m.conns[e.connID]
	if !ok {
		return
	}
	log := m.logger.WithFields(logrus.Fields{"conn": pc.ID, "peer": pc.RemoteID})

	if state := pc.State(); state != StateOpen {
		log.Debugf("Dropping data on %s connection", state)
		return
	}

	msg, err := m.wire.DecodeFromBytes(e.data)
	if err != nil {
		log.Warnf("Invalid data received: %v", err)
		return
	}

	file, err := m.codec.Decode(transfer.EnvelopeFromMessage(msg))
	if err != nil {
		log.Warnf("Invalid data received: %v", err)
		return
	}

	m.mu.Lock()
	m.state.LastReceivedFile = &file
	m.mu.Unlock()

	log.Infof("Received file %s (%d bytes)", file.Name, len(file.Content))
	m.notify(KindInfo, CodeNone, msgFileReceived+file.Name)
	m.publish()
}

func (m *Manager) handleClose(e closeEvent) {
	pc, ok := m.conns[e.connID]
	if !ok {
		return
	}

	m.drop(pc, StateClosed)
	m.logger.WithField("conn", pc.ID).Infof("Connection to %s closed", pc.RemoteID)

	if e.reason == string(CodeRoomFull) {
		m.notify(KindError, CodeRoomFull, msgRoomFull)
	} else {
		m.notify(KindInfo, CodeNone, msgClosedBySender)
	}
	m.publish()
}

func (m *Manager) handleError(e errorEvent) {
	pc, ok := m.conns[e.connID]
	if !ok {
		return
	}

	m.drop(pc, StateErrored)
	m.logger.WithField("conn", pc.ID).Errorf("Connection error with %s: %v", pc.RemoteID, e.err)
	m.notify(KindError, CodeTransportError, msgConnectFailed)
	m.publish()
}

func (m *Manager) handleSendRequested(e sendRequestedEvent) {
	if m.registry.Len() == 0 {
		e.reply <- sendResult{err: m.fail("send", CodeNotConnected, ErrNotConnected, msgNotConnected)}
		return
	}
	if e.file == nil {
		e.reply <- sendResult{err: m.fail("send", CodeNoFileSelected, ErrNoFileSelected, msgNoFileSelected)}
		return
	}

	file := *e.file
	go func() {
		env, err := m.codec.Encode(file)
		m.box.push(encodedEvent{name: file.Name, envelope: env, err: err, reply: e.reply})
	}()
}

func (m *Manager) handleEncoded(e encodedEvent) {
	if e.err != nil {
		m.logger.Errorf("Failed to encode %s: %v", e.name, e.err)
		e.reply <- sendResult{err: NewError("send", CodeNone, e.err)}
		return
	}

	data, err := m.wire.EncodeToBytes(e.envelope.Message())
	if err != nil {
		m.logger.Errorf("Failed to serialize %s: %v", e.name, err)
		e.reply <- sendResult{err: NewError("send", CodeNone, err)}
		return
	}

	// Connections may have come or gone while the file was being encoded.
	targets := m.registry.Connections()
	if len(targets) == 0 {
		e.reply <- sendResult{err: m.fail("send", CodeNotConnected, ErrNotConnected, msgNotConnected)}
		return
	}

	sent := 0
	for _, pc := range targets {
		if err := pc.conn.Send(data); err != nil {
			m.logger.WithField("conn", pc.ID).Warnf("Failed to send %s to %s: %v", e.name, pc.RemoteID, err)
			continue
		}
		sent++
	}
	if sent == 0 {
		m.logger.Errorf("Failed to send %s to any of %d peer(s)", e.name, len(targets))
		e.reply <- sendResult{err: m.fail("send", CodeTransportError, fmt.Errorf("%w: no peer accepted %s", ErrTransport, e.name), msgSendFailed)}
		return
	}

	m.logger.Infof("Sent %s to %d peer(s)", e.name, sent)
	m.notify(KindInfo, CodeNone, msgFileSent)
	e.reply <- sendResult{recipients: sent}
}

func (m *Manager) handleDisconnect(e disconnectEvent) {
	m.closeAll()
	m.publish()
	e.reply <- struct{}{}
}

func (m *Manager) shutdown() {
	m.closeAll()
	if err := m.endpoint.Close(); err != nil {
		m.logger.Warnf("Failed to close endpoint: %v", err)
	}
	m.publish()
}

func (m *Manager) closeAll() {
	for _, pc := range m.conns {
		m.drop(pc, StateClosed)
	}
}

// drop moves pc to a terminal state and prunes it in the same step, so its
// slot is free for the next event.
func (m *Manager) drop(pc *PeerConnection, state ConnState) {
	pc.transition(state)
	m.registry.Remove(pc.ID)
	delete(m.conns, pc.ID)
	if err := pc.conn.Close(); err != nil {
		m.logger.Debugf("Close %s: %v", pc.ID, err)
	}
}

func (m *Manager) fail(op string, code Code, err error, message string) error {
	m.notify(KindError, code, message)
	return NewError(op, code, err)
}

func (m *Manager) notify(kind Kind, code Code, message string) {
	m.sink.Notify(Notification{Kind: kind, Code: code, Message: message})
}

func (m *Manager) publish() {
	m.sink.StateChanged(m.State())
}
