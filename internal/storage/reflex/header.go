// Package reflex is the storage backend for nodes that speak the block
// protocol: a fixed little-endian header addressing 512-byte sectors.
package reflex

import (
	"fmt"

	"github.com/S1riyS/pocketfs/pkg/binary"
)

const (
	HeaderSize = 24
	SectorSize = 512

	Magic int16 = HeaderSize

	OpGet int16 = 0
	OpPut int16 = 1
)

// Header precedes every request and every response. Count is in sectors.
type Header struct {
	Magic  int16
	Op     int16
	Ticket int64
	LBA    int64
	Count  int32
}

func NewHeader(op int16, ticket, lba int64, count int32) Header {
	return Header{Magic: Magic, Op: op, Ticket: ticket, LBA: lba, Count: count}
}

func (h *Header) Write(buf *binary.Buffer) error {
	buf.PutShort(h.Magic)
	buf.PutShort(h.Op)
	buf.PutLong(h.Ticket)
	buf.PutLong(h.LBA)
	buf.PutInt(h.Count)
	return buf.Err()
}

func (h *Header) Update(buf *binary.Buffer) error {
	h.Magic = buf.GetShort()
	h.Op = buf.GetShort()
	h.Ticket = buf.GetLong()
	h.LBA = buf.GetLong()
	h.Count = buf.GetInt()
	return buf.Err()
}

func (h *Header) Size() int { return HeaderSize }

func (h *Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("bad magic %d", h.Magic)
	}
	if h.Op != OpGet && h.Op != OpPut {
		return fmt.Errorf("bad op %d", h.Op)
	}
	if h.Count < 0 || h.LBA < 0 {
		return fmt.Errorf("bad range lba=%d count=%d", h.LBA, h.Count)
	}
	return nil
}

// Sectors returns how many sectors cover n bytes.
func Sectors(n int) int32 {
	return int32((n + SectorSize - 1) / SectorSize)
}
