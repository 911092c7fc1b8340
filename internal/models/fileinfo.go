package models

import (
	"fmt"

	"github.com/S1riyS/pocketfs/pkg/binary"
)

const FileInfoSize = 44

// FileInfo is the client-visible metadata of a node. DirOffset < 0 means the
// node has no entry in its parent's directory stream.
type FileInfo struct {
	FD               int64
	Capacity         int64
	Type             NodeType
	DirOffset        int64
	Token            int64
	ModificationTime int64
}

func (f FileInfo) IsDir() bool {
	return f.Type == NodeTypeDirectory
}

func (f FileInfo) String() string {
	return fmt.Sprintf("%s{fd=%d capacity=%d dir_offset=%d}", f.Type, f.FD, f.Capacity, f.DirOffset)
}

func (f *FileInfo) Write(buf *binary.Buffer) error {
	buf.PutLong(f.FD)
	buf.PutLong(f.Capacity)
	buf.PutInt(int32(f.Type))
	buf.PutLong(f.DirOffset)
	buf.PutLong(f.Token)
	buf.PutLong(f.ModificationTime)
	return buf.Err()
}

func (f *FileInfo) Update(buf *binary.Buffer) error {
	f.FD = buf.GetLong()
	f.Capacity = buf.GetLong()
	f.Type = NodeType(buf.GetInt())
	f.DirOffset = buf.GetLong()
	f.Token = buf.GetLong()
	f.ModificationTime = buf.GetLong()
	return buf.Err()
}

func (f *FileInfo) Size() int { return FileInfoSize }
