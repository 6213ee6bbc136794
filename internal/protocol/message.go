package protocol

import "errors"

var ErrMalformedMessage = errors.New("malformed message")

// Message is the single data-channel message carrying one complete file.
// File holds the encoded content, FileName the original name.
type Message struct {
	File     string `json:"file,omitempty" msgpack:"file,omitempty" cbor:"file,omitempty"`
	FileName string `json:"fileName,omitempty" msgpack:"fileName,omitempty" cbor:"fileName,omitempty"`
}

// Validate reports ErrMalformedMessage unless both fields are present.
func (m Message) Validate() error {
	if m.File == "" {
		return errors.Join(ErrMalformedMessage, errors.New("missing "+FieldFile))
	}
	if m.FileName == "" {
		return errors.Join(ErrMalformedMessage, errors.New("missing "+FieldFileName))
	}
	return nil
}
