package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	signalOffer  = "offer"
	signalAnswer = "answer"
)

var errBadSignal = errors.New("malformed signal")

// signal is the payload relayed through the signaling service. Conn tells
// apart several connections between the same two peers.
type signal struct {
	Conn string `json:"conn"`
	Type string `json:"type"`
	SDP  string `json:"sdp,omitempty"`
}

func (s signal) encode() []byte {
	data, _ := json.Marshal(s)
	return data
}

func parseSignal(data []byte) (signal, error) {
	var s signal
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%w: %w", errBadSignal, err)
	}
	if s.Conn == "" {
		return s, fmt.Errorf("%w: missing conn", errBadSignal)
	}
	switch s.Type {
	case signalOffer, signalAnswer:
	default:
		return s, fmt.Errorf("%w: type %q", errBadSignal, s.Type)
	}
	return s, nil
}

func connKey(peerID, token string) string {
	return peerID + "/" + token
}
