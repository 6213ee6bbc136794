package session

import (
	"errors"
	"fmt"

	"github.com/rudransh-shrivastava/peerdrop/internal/transfer"
)

var (
	ErrRoomFull          = errors.New("room is full")
	ErrInvalidIdentifier = errors.New("invalid connection identifier")
	ErrNotConnected      = errors.New("not connected to any peer")
	ErrNoFileSelected    = errors.New("no file selected")
	ErrTransport         = errors.New("transport error")
	ErrMalformedMessage  = transfer.ErrMalformedMessage
	ErrStopped           = errors.New("session stopped")
)

// Code classifies an error for the presentation layer.
type Code string

const (
	CodeNone              Code = ""
	CodeRoomFull          Code = "RoomFull"
	CodeInvalidIdentifier Code = "InvalidIdentifier"
	CodeNotConnected      Code = "NotConnected"
	CodeNoFileSelected    Code = "NoFileSelected"
	CodeTransportError    Code = "TransportError"
	CodeMalformedMessage  Code = "MalformedMessage"
)

// Error is an operation failure with its code.
type Error struct {
	Op   string
	Code Code
	Err  error
}

func NewError(op string, code Code, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code carried by err, or derives it from a sentinel.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrInvalidIdentifier):
		return CodeInvalidIdentifier
	case errors.Is(err, ErrNotConnected):
		return CodeNotConnected
	case errors.Is(err, ErrNoFileSelected):
		return CodeNoFileSelected
	case errors.Is(err, ErrMalformedMessage):
		return CodeMalformedMessage
	case errors.Is(err, ErrTransport):
		return CodeTransportError
	default:
		return CodeNone
	}
}
