package signaling

import "encoding/json"

const (
	TypeRegister   = "register"
	TypeRegistered = "registered"
	TypeSignal     = "signal"
	TypeError      = "error"
)

const (
	errIDTaken         = "id taken"
	errPeerUnavailable = "peer unavailable"
	errNotRegistered   = "not registered"
	errRegistered      = "already registered"
)

// Message is the JSON frame exchanged over the signaling websocket.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`

	peer *peer
}
