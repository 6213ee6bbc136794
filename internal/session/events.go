package session

import (
	"context"

	"github.com/rudransh-shrivastava/peerdrop/internal/transfer"
	"github.com/rudransh-shrivastava/peerdrop/internal/transport"
)

// event is anything the session loop processes.
type event interface {
	eventName() string
}

type connectResult struct {
	info ConnInfo
	err  error
}

type sendResult struct {
	recipients int
	err        error
}

type createEvent struct {
	reply chan string
}

// connectEvent carries the caller's ctx so a cancelled Join never dials.
type connectEvent struct {
	ctx      context.Context
	remoteID string
	reply    chan connectResult
}

type incomingEvent struct {
	conn transport.Conn
}

type openEvent struct {
	connID string
}

type dataEvent struct {
	connID string
	data   []byte
}

type closeEvent struct {
	connID string
	reason string
}

type errorEvent struct {
	connID string
	err    error
}

type sendRequestedEvent struct {
	file  *transfer.File
	reply chan sendResult
}

// encodedEvent resumes a send once the file has been encoded off the loop.
type encodedEvent struct {
	name     string
	envelope transfer.Envelope
	err      error
	reply    chan sendResult
}

type disconnectEvent struct {
	reply chan struct{}
}

func (createEvent) eventName() string        { return "create" }
func (connectEvent) eventName() string       { return "connect" }
func (incomingEvent) eventName() string      { return "incoming" }
func (openEvent) eventName() string          { return "open" }
func (dataEvent) eventName() string          { return "data" }
func (closeEvent) eventName() string         { return "close" }
func (errorEvent) eventName() string         { return "error" }
func (sendRequestedEvent) eventName() string { return "send-requested" }
func (encodedEvent) eventName() string       { return "encoded" }
func (disconnectEvent) eventName() string    { return "disconnect" }
