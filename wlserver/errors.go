package wlserver

import (
	"errors"
	"fmt"
)

var (
	ErrProtocol     = errors.New("protocol error")
	ErrDestroyed    = errors.New("display destroyed")
	ErrBufferAccess = errors.New("error accessing shm buffer")
)

// wl_display error codes.
const (
	displayErrorInvalidObject  = 0
	displayErrorInvalidMethod  = 1
	displayErrorNoMemory       = 2
	displayErrorImplementation = 3
)

// ProtocolError is returned by request handlers when a client violates the
// protocol. The client is sent wl_display.error and disconnected.
type ProtocolError struct {
	ObjectID uint32
	Code     uint32
	Message  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on object %d (code %d): %s", e.ObjectID, e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

func protoErr(r *Resource, code uint32, format string, args ...any) error {
	return &ProtocolError{ObjectID: r.id, Code: code, Message: fmt.Sprintf(format, args...)}
}
