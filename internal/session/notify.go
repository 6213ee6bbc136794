package session

import "github.com/rudransh-shrivastava/peerdrop/internal/transfer"

const (
	msgShareID        = "Share this ID with the recipient: "
	msgInvalidID      = "Enter a valid connection ID."
	msgRoomFull       = "Room is full!"
	msgConnected      = "Connected successfully!"
	msgClosedBySender = "Connection closed by the sender."
	msgConnectFailed  = "Failed to connect. Please check the connection ID."
	msgNotConnected   = "Not connected to any peer."
	msgNoFileSelected = "Please select a file."
	msgFileSent       = "File sent!"
	msgSendFailed     = "Failed to send file."
	msgFileReceived   = "file received: "
)

type Kind int

const (
	KindInfo Kind = iota
	KindError
)

func (k Kind) String() string {
	if k == KindError {
		return "error"
	}
	return "info"
}

type Notification struct {
	Kind    Kind
	Code    Code
	Message string
}

// State is what the presentation layer renders.
type State struct {
	LocalID          string
	ConnectionCount  int
	LastReceivedFile *transfer.DownloadableFile
}

// Sink receives everything user-facing. Calls come from the session loop
// one at a time and should return quickly.
type Sink interface {
	Notify(n Notification)
	StateChanged(s State)
}

type discardSink struct{}

func (discardSink) Notify(Notification) {}
func (discardSink) StateChanged(State)  {}

// SinkFuncs adapts plain functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnNotify func(Notification)
	OnState  func(State)
}

func (s SinkFuncs) Notify(n Notification) {
	if s.OnNotify != nil {
		s.OnNotify(n)
	}
}

func (s SinkFuncs) StateChanged(st State) {
	if s.OnState != nil {
		s.OnState(st)
	}
}
