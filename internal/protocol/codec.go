package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec serializes Message in one wire format. Decoding always validates,
// so anything that is not a complete file message comes back as
// ErrMalformedMessage.
type Codec struct {
	format Format
}

func NewCodec(format Format) (*Codec, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatJSON
	}
	return &Codec{format: format}, nil
}

func (c *Codec) Format() Format {
	return c.format
}

func (c *Codec) Encode(w io.Writer, msg Message) error {
	data, err := c.EncodeToBytes(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (c *Codec) Decode(r io.Reader) (Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Message{}, err
	}
	return c.DecodeFromBytes(data)
}

func (c *Codec) EncodeToBytes(msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	switch c.format {
	case FormatMsgpack:
		return msgpack.Marshal(&msg)
	case FormatCBOR:
		return cbor.Marshal(msg)
	case FormatProtobuf:
		s, err := structpb.NewStruct(map[string]any{
			FieldFile:     msg.File,
			FieldFileName: msg.FileName,
		})
		if err != nil {
			return nil, err
		}
		return proto.Marshal(s)
	default:
		return json.Marshal(msg)
	}
}

func (c *Codec) DecodeFromBytes(data []byte) (Message, error) {
	var msg Message
	var err error

	switch c.format {
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &msg)
	case FormatCBOR:
		err = cbor.Unmarshal(data, &msg)
	case FormatProtobuf:
		msg, err = decodeStruct(data)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(&msg)
	}
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, c.format, err)
	}

	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func decodeStruct(data []byte) (Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Message{}, err
	}
	fields := s.GetFields()
	return Message{
		File:     fields[FieldFile].GetStringValue(),
		FileName: fields[FieldFileName].GetStringValue(),
	}, nil
}
