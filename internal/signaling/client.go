package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peerdrop/internal/logger"
	"github.com/rudransh-shrivastava/peerdrop/internal/transport"
)

// Client is a websocket connection to a signaling server. It implements
// transport.Signaler.
type Client struct {
	conn    *websocket.Conn
	logger  *logrus.Logger
	send    chan *Message
	replies chan *Message
	signals chan transport.Signal

	done      chan struct{}
	closeOnce sync.Once
	regMu     sync.Mutex
}

var _ transport.Signaler = (*Client)(nil)

func Dial(ctx context.Context, url string, log *logrus.Logger) (*Client, error) {
	if log == nil {
		log = logger.NewLogger()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}

	c := &Client{
		conn:    conn,
		logger:  log,
		send:    make(chan *Message, sendBuffer),
		replies: make(chan *Message, 1),
		signals: make(chan transport.Signal, sendBuffer),
		done:    make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Register claims id on the server. An empty id asks the server to assign one.
func (c *Client) Register(ctx context.Context, id string) (string, error) {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	if err := c.write(ctx, &Message{Type: TypeRegister, ID: id}); err != nil {
		return "", err
	}

	select {
	case msg := <-c.replies:
		if msg.Type == TypeRegistered {
			return msg.ID, nil
		}
		if msg.Error == errIDTaken {
			return "", transport.ErrIDTaken
		}
		return "", fmt.Errorf("register %q: %s", id, msg.Error)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", transport.ErrClosed
	}
}

func (c *Client) SendSignal(ctx context.Context, peerID string, signal []byte) error {
	if !json.Valid(signal) {
		return errors.New("signal payload is not valid JSON")
	}
	return c.write(ctx, &Message{Type: TypeSignal, To: peerID, Payload: json.RawMessage(signal)})
}

// RecvSignal is closed when the connection to the server ends.
func (c *Client) RecvSignal() <-chan transport.Signal {
	return c.signals
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}

func (c *Client) write(ctx context.Context, msg *Message) error {
	select {
	case c.send <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return transport.ErrClosed
	}
}

func (c *Client) readPump() {
	defer func() {
		close(c.signals)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(data string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debugf("Signaling connection lost: %v", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch {
		case msg.Type == TypeSignal:
			c.deliver(transport.Signal{PeerID: msg.From, Payload: msg.Payload})
		case msg.Type == TypeError && msg.Error == errPeerUnavailable:
			c.deliver(transport.Signal{PeerID: msg.From, Payload: msg.Payload, Err: transport.ErrPeerUnavailable})
		case msg.Type == TypeRegistered || msg.Type == TypeError:
			select {
			case c.replies <- &msg:
			default:
				c.logger.Warnf("Unexpected %s reply: %s", msg.Type, msg.Error)
			}
		default:
			c.logger.Warnf("Unhandled message type %q", msg.Type)
		}
	}
}

func (c *Client) deliver(sig transport.Signal) {
	select {
	case c.signals <- sig:
	case <-c.done:
	}
}

func (c *Client) writePump() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debugf("Signaling write failed: %v", err)
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
