package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/rudransh-shrivastava/peerdrop/internal/transport"
)

const (
	signalTimeout = 15 * time.Second
	rejectLinger  = 500 * time.Millisecond

	// Send waits while more than maxBuffered bytes are queued and resumes
	// once the channel drains below bufferedLow.
	maxBuffered = 1 << 20
	bufferedLow = 256 << 10
	sendStall   = 30 * time.Second
)

var (
	errConnectionFailed = errors.New("peer connection failed")
	errSendStalled      = errors.New("data channel stopped draining")
)

type conn struct {
	endpoint  *Endpoint
	peerID    string
	token     string
	key       string
	pc        *webrtc.PeerConnection
	queue     *transport.EventQueue
	initiator bool
	timer     *time.Timer
	frames    *assembler
	drained   chan struct{}
	done      chan struct{}

	sendMu sync.Mutex
	nextID uint32

	mu     sync.Mutex
	dc     *webrtc.DataChannel
	open   bool
	closed bool
}

func newConn(e *Endpoint, peerID, token string, pc *webrtc.PeerConnection, initiator bool) *conn {
	c := &conn{
		endpoint:  e,
		peerID:    peerID,
		token:     token,
		key:       connKey(peerID, token),
		pc:        pc,
		queue:     transport.NewEventQueue(),
		initiator: initiator,
		frames:    newAssembler(maxMessageSize),
		drained:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed:
			c.fail(errConnectionFailed)
		case webrtc.PeerConnectionStateClosed:
			c.remoteClosed("")
		}
	})

	c.timer = time.AfterFunc(e.opts.OpenTimeout, func() {
		c.mu.Lock()
		open := c.open
		c.mu.Unlock()
		if !open {
			c.fail(errOpenTimeout)
		}
	})
	return c
}

func (c *conn) PeerID() string {
	return c.peerID
}

func (c *conn) Events() <-chan transport.Event {
	return c.queue.Events()
}

func (c *conn) Send(data []byte) error {
	c.mu.Lock()
	dc, open, closed := c.dc, c.open, c.closed
	c.mu.Unlock()

	if closed {
		return transport.ErrClosed
	}
	if dc == nil || !open {
		return fmt.Errorf("data channel not ready")
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	id := c.nextID
	c.nextID++
	for _, f := range splitFrames(id, data, frameChunkSize) {
		if err := c.waitDrained(dc); err != nil {
			return err
		}
		if err := dc.Send(f); err != nil {
			return fmt.Errorf("send frame: %w", err)
		}
	}
	return nil
}

func (c *conn) waitDrained(dc *webrtc.DataChannel) error {
	for dc.BufferedAmount() > maxBuffered {
		select {
		case <-c.drained:
		case <-c.done:
			return transport.ErrClosed
		case <-time.After(sendStall):
			return errSendStalled
		}
	}
	return nil
}

func (c *conn) Close() error {
	if !c.finish(transport.Event{Kind: transport.EventClose}) {
		return nil
	}
	c.queue.Stop()
	go c.teardown(0)
	return nil
}

// Reject tells the remote side why before closing. The channel is held open
// briefly so the frame is flushed.
func (c *conn) Reject(reason string) error {
	c.mu.Lock()
	dc, open := c.dc, c.open
	c.mu.Unlock()

	if !c.finish(transport.Event{Kind: transport.EventClose}) {
		return nil
	}
	c.queue.Stop()

	var err error
	if dc != nil && open {
		err = dc.Send(transport.RejectFrame(reason))
	}
	go c.teardown(rejectLinger)
	return err
}

func (c *conn) attach(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.SetBufferedAmountLowThreshold(bufferedLow)
	dc.OnBufferedAmountLow(func() {
		select {
		case c.drained <- struct{}{}:
		default:
		}
	})

	dc.OnOpen(func() {
		c.mu.Lock()
		if c.closed || c.open {
			c.mu.Unlock()
			return
		}
		c.open = true
		c.mu.Unlock()
		c.timer.Stop()

		if c.initiator {
			c.queue.Emit(transport.Event{Kind: transport.EventOpen})
			return
		}
		c.endpoint.deliver(c)
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		data := msg.Data
		switch {
		case isFrame(data):
			whole, ok, err := c.frames.push(data)
			if err != nil {
				c.fail(err)
				return
			}
			if !ok {
				return
			}
			data = whole
		default:
			if reason, ok := transport.ParseReject(data); ok {
				c.remoteClosed(reason)
				return
			}
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			c.queue.Emit(transport.Event{Kind: transport.EventData, Data: data})
		}
	})

	dc.OnClose(func() {
		c.remoteClosed("")
	})

	dc.OnError(func(err error) {
		c.fail(err)
	})
}

func (c *conn) offer() {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		c.fail(fmt.Errorf("failed to create offer: %w", err))
		return
	}
	if err := c.publish(offer, signalOffer); err != nil {
		c.fail(err)
	}
}

func (c *conn) answer(sdp string) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		c.fail(fmt.Errorf("failed to set remote description: %w", err))
		return
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		c.fail(fmt.Errorf("failed to create answer: %w", err))
		return
	}
	if err := c.publish(answer, signalAnswer); err != nil {
		c.fail(err)
	}
}

func (c *conn) setAnswer(sdp string) {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		c.fail(fmt.Errorf("failed to set remote description: %w", err))
	}
}

// publish sets the local description and sends it once ICE gathering is
// complete, so no candidates need to be trickled.
func (c *conn) publish(desc webrtc.SessionDescription, kind string) error {
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()

	select {
	case <-gathered:
	case <-ctx.Done():
		return fmt.Errorf("ice gathering: %w", ctx.Err())
	}

	local := c.pc.LocalDescription()
	if local == nil {
		return errors.New("no local description")
	}

	s := signal{Conn: c.token, Type: kind, SDP: local.SDP}
	if err := c.endpoint.signaler.SendSignal(ctx, c.peerID, s.encode()); err != nil {
		return fmt.Errorf("failed to send %s: %w", kind, err)
	}
	return nil
}

func (c *conn) remoteClosed(reason string) {
	if c.finish(transport.Event{Kind: transport.EventClose, Reason: reason}) {
		go c.teardown(0)
	}
}

func (c *conn) fail(err error) {
	if c.finish(transport.Event{Kind: transport.EventError, Err: err}) {
		go c.teardown(0)
	}
}

// finish marks the connection closed and queues its terminal event. It
// reports false if the connection had already finished.
func (c *conn) finish(ev transport.Event) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	c.timer.Stop()
	c.queue.Emit(ev)
	c.endpoint.untrack(c)
	return true
}

func (c *conn) teardown(linger time.Duration) {
	if linger > 0 {
		time.Sleep(linger)
	}

	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	_ = c.pc.Close()
}
