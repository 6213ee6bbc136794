// Package transfer turns a local file into a self-contained envelope and a
// received envelope back into a downloadable file.
package transfer

import (
	"github.com/rudransh-shrivastava/peerdrop/internal/protocol"
)

var ErrMalformedMessage = protocol.ErrMalformedMessage

// File is a file selected for sending, already read into memory.
type File struct {
	Name    string
	Content []byte
}

// Envelope is the transmissible form of one complete file.
type Envelope struct {
	Payload string
	Name    string
}

// DownloadableFile is a decoded envelope. Href is the original payload and
// can be used directly as a download source.
type DownloadableFile struct {
	Name     string
	MIMEType string
	Href     string
	Content  []byte
}

// Codec converts between files and envelopes. Implementations must be safe
// for concurrent use.
type Codec interface {
	Encode(f File) (Envelope, error)
	Decode(env Envelope) (DownloadableFile, error)
}

func (e Envelope) Message() protocol.Message {
	return protocol.Message{File: e.Payload, FileName: e.Name}
}

func EnvelopeFromMessage(m protocol.Message) Envelope {
	return Envelope{Payload: m.File, Name: m.FileName}
}
