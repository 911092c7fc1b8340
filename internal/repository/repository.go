// Package repository persists the metadata server's namespace: inodes, their
// blocks and the storage nodes blocks are carved from.
package repository

import (
	"context"
	"errors"

	"github.com/S1riyS/pocketfs/internal/models"
)

// ErrConflict is returned when a create would duplicate an existing key.
var ErrConflict = errors.New("repository: conflicting record")

// Lookups return (nil, nil) when the record does not exist.

type InodeRepository interface {
	Get(ctx context.Context, fd int64) (*models.Inode, error)
	GetChild(ctx context.Context, parentFD int64, component int32) (*models.Inode, error)
	Children(ctx context.Context, parentFD int64) ([]*models.Inode, error)
	CountChildren(ctx context.Context, parentFD int64) (int64, error)
	// Create stores inode and assigns its FD.
	Create(ctx context.Context, inode *models.Inode) error
	// Update persists capacity and modification time.
	Update(ctx context.Context, inode *models.Inode) error
	// ReserveDirSlot hands out the next directory-entry slot of directory fd
	// and grows its capacity to cover it.
	ReserveDirSlot(ctx context.Context, fd int64) (offset, capacity int64, err error)
	Delete(ctx context.Context, fd int64) error
	Count(ctx context.Context) (int64, error)
}

type BlockRepository interface {
	Get(ctx context.Context, fd, offset int64) (*models.Block, error)
	Create(ctx context.Context, block *models.Block) error
	DeleteAll(ctx context.Context, fd int64) error
}

type DatanodeRepository interface {
	// Register adds the node, or refreshes it if its endpoint is known, and
	// assigns its ID. Allocation state of a known node is kept.
	Register(ctx context.Context, node *models.Datanode) error
	ListByClass(ctx context.Context, storageClass int32) ([]*models.Datanode, error)
	// Allocate reserves size bytes on node id and returns their start
	// address, or ok=false if the node is full.
	Allocate(ctx context.Context, id int64, size int64) (addr int64, ok bool, err error)
}

// Transactor runs fn so that the repository calls it makes are atomic.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
