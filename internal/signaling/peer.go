package signaling

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 32
)

// peer is the server side of one websocket connection.
type peer struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan *Message
	logger *logrus.Logger

	// Owned by the hub goroutine.
	id     string
	closed bool
}

func newPeer(h *Hub, conn *websocket.Conn, logger *logrus.Logger) *peer {
	return &peer{
		hub:    h,
		conn:   conn,
		send:   make(chan *Message, sendBuffer),
		logger: logger,
	}
}

// readPump feeds frames to the hub until the connection drops.
func (p *peer) readPump() {
	defer func() {
		select {
		case p.hub.unregister <- p:
		case <-p.hub.done:
		}
		_ = p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.Debugf("Read from %s: %v", p.conn.RemoteAddr(), err)
			}
			return
		}
		msg.peer = p
		select {
		case p.hub.inbound <- &msg:
		case <-p.hub.done:
			return
		}
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteJSON(msg); err != nil {
				p.logger.Debugf("Write to %s: %v", p.conn.RemoteAddr(), err)
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
