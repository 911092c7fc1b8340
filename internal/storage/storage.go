// Package storage abstracts the data path to storage nodes. Backends are
// picked per endpoint from its storage class.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/pkg/binary"
)

var (
	ErrStorage     = errors.New("storage: node reported failure")
	ErrUnknownKind = errors.New("storage: no backend for storage class")
)

// Client moves bytes between a caller buffer and a storage node. Transfers
// cover buf's [position, limit) and do not move the cursor: the caller
// advances it by the count Future.Get returns.
type Client interface {
	Connect(ctx context.Context, endpoint models.DatanodeInfo) error
	Close() error
	WriteData(key int32, address int64, buf *binary.Buffer) (Future, error)
	ReadData(key int32, address int64, buf *binary.Buffer) (Future, error)
}

// Future blocks until the transfer completes and returns the byte count.
type Future interface {
	Get() (int, error)
}

type Kind int

const (
	KindNaRPC Kind = iota
	KindReflex
)

func (k Kind) String() string {
	switch k {
	case KindNaRPC:
		return "narpc"
	case KindReflex:
		return "reflex"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// KindOf maps a storage class to its backend: class 0 speaks narpc, every
// other class the block protocol.
func KindOf(endpoint models.DatanodeInfo) Kind {
	if endpoint.StorageClass == 0 {
		return KindNaRPC
	}
	return KindReflex
}

// Factory returns a new, unconnected client.
type Factory func() Client

type Factories map[Kind]Factory
