package models

import "time"

const (
	DirectoryDepth = 16
	BlockSize      = 65536
	BufferSize     = 524288
	DirRecordSize  = 512
)

// NodeType is carried as int32 on the wire.
type NodeType int32

const (
	NodeTypeFile      NodeType = 0
	NodeTypeDirectory NodeType = 1
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeFile:
		return "file"
	case NodeTypeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

func (t NodeType) Valid() bool {
	return t == NodeTypeFile || t == NodeTypeDirectory
}

// RootFD is the descriptor of "/", which always exists.
const RootFD int64 = 0

// Inode is the metadata server's view of a node.
type Inode struct {
	FD            int64
	ParentFD      int64
	Component     int32
	Name          string
	Type          NodeType
	Capacity      int64
	DirOffset     int64
	DirCursor     int64
	Token         int64
	StorageClass  int32
	LocationClass int32
	Enumerable    bool
	ModifiedAt    time.Time
}

func (i *Inode) IsDir() bool {
	return i.Type == NodeTypeDirectory
}

func (i *Inode) FileInfo() FileInfo {
	return FileInfo{
		FD:               i.FD,
		Capacity:         i.Capacity,
		Type:             i.Type,
		DirOffset:        i.DirOffset,
		Token:            i.Token,
		ModificationTime: i.ModifiedAt.UnixMilli(),
	}
}

// Block is one allocated block of an inode, keyed by its block-aligned offset.
type Block struct {
	FD     int64
	Offset int64
	Info   BlockInfo
}

// Datanode is a storage node registered with the metadata server. NextAddr is
// the first byte of its volume not yet handed out.
type Datanode struct {
	ID       int64
	Info     DatanodeInfo
	Capacity int64
	NextAddr int64
}

func (d *Datanode) Free() int64 {
	return d.Capacity - d.NextAddr
}
