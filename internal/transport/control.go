package transport

import (
	"bytes"
	"encoding/json"
)

const controlReject = "reject"

type controlFrame struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// RejectFrame is sent over the data channel right before closing, for
// transports that cannot attach a reason to the close itself.
func RejectFrame(reason string) []byte {
	data, _ := json.Marshal(controlFrame{Type: controlReject, Reason: reason})
	return data
}

// ParseReject reports whether data is a reject frame and returns its reason.
func ParseReject(data []byte) (string, bool) {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return "", false
	}
	var frame controlFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return "", false
	}
	if frame.Type != controlReject {
		return "", false
	}
	return frame.Reason, true
}
