// Package narpc implements the ticketed request/response framing shared by
// the metadata service and the generic storage backend.
//
// Every frame is [int32 size][int64 ticket][body][payload], big-endian, where
// size counts body and payload. The payload is a caller-owned region that is
// sent from, or received into, without an intermediate copy.
package narpc

import (
	"errors"

	"github.com/S1riyS/pocketfs/pkg/binary"
)

const (
	HeaderSize  = 12
	MaxInflight = 8

	DefaultBufferSize   = 4096
	DefaultMaxFrameSize = 16 << 20
)

var (
	ErrClosed       = errors.New("narpc: client closed")
	ErrNotConnected = errors.New("narpc: not connected")
	ErrTransport    = errors.New("narpc: transport failure")
	ErrProtocol     = errors.New("narpc: protocol violation")
)

// Message is a Record that may carry a separate payload region.
//
// Payload returns nil when the message has none. For a request the payload's
// [position, limit) is transmitted after the body. For a response it is the
// region the payload is received into, and its Remaining is the declared
// payload size.
type Message interface {
	binary.Record
	Payload() *binary.Buffer
}

func payloadLen(m Message) int {
	if p := m.Payload(); p != nil {
		return p.Remaining()
	}
	return 0
}

func putHeader(buf *binary.Buffer, size int32, ticket int64) {
	buf.PutInt(size)
	buf.PutLong(ticket)
}
