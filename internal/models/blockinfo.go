package models

import (
	"fmt"

	"github.com/S1riyS/pocketfs/pkg/binary"
)

const BlockInfoSize = DatanodeInfoSize + 24

// BlockInfo locates one block on a storage node.
type BlockInfo struct {
	Datanode DatanodeInfo
	LBA      int64
	Addr     int64
	Length   int32
	LKey     int32
}

func (b BlockInfo) String() string {
	return fmt.Sprintf("block{%s addr=%d len=%d}", b.Datanode.Address(), b.Addr, b.Length)
}

func (b *BlockInfo) Write(buf *binary.Buffer) error {
	if err := b.Datanode.Write(buf); err != nil {
		return err
	}
	buf.PutLong(b.LBA)
	buf.PutLong(b.Addr)
	buf.PutInt(b.Length)
	buf.PutInt(b.LKey)
	return buf.Err()
}

func (b *BlockInfo) Update(buf *binary.Buffer) error {
	if err := b.Datanode.Update(buf); err != nil {
		return err
	}
	b.LBA = buf.GetLong()
	b.Addr = buf.GetLong()
	b.Length = buf.GetInt()
	b.LKey = buf.GetInt()
	return buf.Err()
}

func (b *BlockInfo) Size() int { return BlockInfoSize }
