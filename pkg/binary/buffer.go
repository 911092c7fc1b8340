package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ByteOrder selects how multi-byte integers are laid out in a Buffer.
type ByteOrder int16

const (
	BigEndian    ByteOrder = 1
	LittleEndian ByteOrder = 2
)

func (o ByteOrder) String() string {
	switch o {
	case BigEndian:
		return "big-endian"
	case LittleEndian:
		return "little-endian"
	default:
		return fmt.Sprintf("ByteOrder(%d)", int16(o))
	}
}

var (
	ErrOverflow  = errors.New("binary: write past buffer limit")
	ErrUnderflow = errors.New("binary: read past buffer limit")
)

// Buffer is a fixed-capacity byte region with a cursor and a limit.
//
// Invariant: 0 <= position <= limit <= capacity. Puts and gets that would
// cross the limit do not touch memory; they record a sticky error instead,
// which is reported by Err and reset by Clear.
type Buffer struct {
	data     []byte
	position int
	limit    int
	order    ByteOrder
	err      error
}

// NewBuffer allocates a zeroed buffer ready for writing, big-endian.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		panic("binary: negative buffer capacity")
	}
	return &Buffer{
		data:  make([]byte, capacity),
		limit: capacity,
		order: BigEndian,
	}
}

// Wrap returns a buffer over data positioned for reading all of it.
func Wrap(data []byte) *Buffer {
	return &Buffer{
		data:  data,
		limit: len(data),
		order: BigEndian,
	}
}

func (b *Buffer) Capacity() int  { return len(b.data) }
func (b *Buffer) Position() int  { return b.position }
func (b *Buffer) Limit() int     { return b.limit }
func (b *Buffer) Remaining() int { return b.limit - b.position }
func (b *Buffer) Err() error     { return b.err }

func (b *Buffer) Order() ByteOrder { return b.order }

func (b *Buffer) SetOrder(order ByteOrder) *Buffer {
	if order != BigEndian && order != LittleEndian {
		panic(fmt.Sprintf("binary: invalid byte order %d", order))
	}
	b.order = order
	return b
}

// SetPosition moves the cursor. Positions outside [0, limit] are a caller bug.
func (b *Buffer) SetPosition(position int) {
	if position < 0 || position > b.limit {
		panic(fmt.Sprintf("binary: position %d out of range [0, %d]", position, b.limit))
	}
	b.position = position
}

// SetLimit moves the limit, pulling the position back if it would exceed it.
func (b *Buffer) SetLimit(limit int) {
	if limit < 0 || limit > len(b.data) {
		panic(fmt.Sprintf("binary: limit %d out of range [0, %d]", limit, len(b.data)))
	}
	b.limit = limit
	if b.position > limit {
		b.position = limit
	}
}

// Clear prepares the buffer for writing from the start.
func (b *Buffer) Clear() *Buffer {
	b.position = 0
	b.limit = len(b.data)
	b.err = nil
	return b
}

// Flip prepares the buffer for reading what was just written.
func (b *Buffer) Flip() *Buffer {
	b.limit = b.position
	b.position = 0
	return b
}

// Bytes returns the unread region [position, limit).
func (b *Buffer) Bytes() []byte {
	return b.data[b.position:b.limit]
}

// Slice returns the next n bytes without moving the cursor.
func (b *Buffer) Slice(n int) ([]byte, error) {
	if n < 0 || n > b.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes, %d remaining", ErrUnderflow, n, b.Remaining())
	}
	return b.data[b.position : b.position+n], nil
}

// Skip advances the cursor by n bytes.
func (b *Buffer) Skip(n int) error {
	if n < 0 || n > b.Remaining() {
		return fmt.Errorf("%w: skip %d, %d remaining", ErrUnderflow, n, b.Remaining())
	}
	b.position += n
	return nil
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer[pos=%d lim=%d cap=%d %s]", b.position, b.limit, len(b.data), b.order)
}

func (b *Buffer) byteOrder() binary.ByteOrder {
	if b.order == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// take reserves n bytes at the cursor for a put or get.
func (b *Buffer) take(n int, fail error) []byte {
	if b.err != nil {
		return nil
	}
	if b.position+n > b.limit {
		b.err = fmt.Errorf("%w: need %d bytes at %d, limit %d", fail, n, b.position, b.limit)
		return nil
	}
	p := b.data[b.position : b.position+n]
	b.position += n
	return p
}

func (b *Buffer) PutByte(v uint8) {
	if p := b.take(1, ErrOverflow); p != nil {
		p[0] = v
	}
}

func (b *Buffer) PutShort(v int16) {
	if p := b.take(2, ErrOverflow); p != nil {
		b.byteOrder().PutUint16(p, uint16(v))
	}
}

func (b *Buffer) PutInt(v int32) {
	if p := b.take(4, ErrOverflow); p != nil {
		b.byteOrder().PutUint32(p, uint32(v))
	}
}

func (b *Buffer) PutLong(v int64) {
	if p := b.take(8, ErrOverflow); p != nil {
		b.byteOrder().PutUint64(p, uint64(v))
	}
}

func (b *Buffer) PutBytes(v []byte) {
	if p := b.take(len(v), ErrOverflow); p != nil {
		copy(p, v)
	}
}

func (b *Buffer) GetByte() uint8 {
	if p := b.take(1, ErrUnderflow); p != nil {
		return p[0]
	}
	return 0
}

func (b *Buffer) GetShort() int16 {
	if p := b.take(2, ErrUnderflow); p != nil {
		return int16(b.byteOrder().Uint16(p))
	}
	return 0
}

func (b *Buffer) GetInt() int32 {
	if p := b.take(4, ErrUnderflow); p != nil {
		return int32(b.byteOrder().Uint32(p))
	}
	return 0
}

func (b *Buffer) GetLong() int64 {
	if p := b.take(8, ErrUnderflow); p != nil {
		return int64(b.byteOrder().Uint64(p))
	}
	return 0
}

// GetBytes fills dst from the cursor.
func (b *Buffer) GetBytes(dst []byte) {
	if p := b.take(len(dst), ErrUnderflow); p != nil {
		copy(dst, p)
	}
}
