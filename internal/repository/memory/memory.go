// Package memory implements the repositories in process memory. Transactions
// are serialized but not rolled back; callers validate before they mutate.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/repository"
)

type childKey struct {
	parent    int64
	component int32
}

type blockKey struct {
	fd     int64
	offset int64
}

// DB holds the whole namespace. The root directory exists from the start.
type DB struct {
	txMu sync.Mutex

	mu        sync.RWMutex
	nextFD    int64
	inodes    map[int64]models.Inode
	children  map[childKey]int64
	blocks    map[blockKey]models.BlockInfo
	nextNode  int64
	datanodes map[int64]*models.Datanode
	endpoints map[int64]int64
}

func New() *DB {
	db := &DB{
		nextFD:    models.RootFD + 1,
		inodes:    make(map[int64]models.Inode),
		children:  make(map[childKey]int64),
		blocks:    make(map[blockKey]models.BlockInfo),
		nextNode:  1,
		datanodes: make(map[int64]*models.Datanode),
		endpoints: make(map[int64]int64),
	}
	db.inodes[models.RootFD] = models.Inode{
		FD:         models.RootFD,
		ParentFD:   models.RootFD,
		Name:       "/",
		Type:       models.NodeTypeDirectory,
		DirOffset:  -1,
		ModifiedAt: time.Now(),
	}
	return db
}

func (db *DB) Inodes() repository.InodeRepository       { return (*inodes)(db) }
func (db *DB) Blocks() repository.BlockRepository       { return (*blocks)(db) }
func (db *DB) Datanodes() repository.DatanodeRepository { return (*datanodes)(db) }

// WithinTransaction runs fn while no other transaction runs.
func (db *DB) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return fn(ctx)
}

type inodes DB

func (r *inodes) Get(_ context.Context, fd int64) (*models.Inode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inode, ok := r.inodes[fd]
	if !ok {
		return nil, nil
	}
	return &inode, nil
}

func (r *inodes) GetChild(_ context.Context, parentFD int64, component int32) (*models.Inode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fd, ok := r.children[childKey{parentFD, component}]
	if !ok {
		return nil, nil
	}
	inode := r.inodes[fd]
	return &inode, nil
}

func (r *inodes) Children(_ context.Context, parentFD int64) ([]*models.Inode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Inode
	for key, fd := range r.children {
		if key.parent == parentFD {
			inode := r.inodes[fd]
			out = append(out, &inode)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FD < out[j].FD })
	return out, nil
}

func (r *inodes) CountChildren(_ context.Context, parentFD int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for key := range r.children {
		if key.parent == parentFD {
			n++
		}
	}
	return n, nil
}

func (r *inodes) Create(_ context.Context, inode *models.Inode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := childKey{inode.ParentFD, inode.Component}
	if _, ok := r.children[key]; ok {
		return repository.ErrConflict
	}

	inode.FD = r.nextFD
	r.nextFD++
	r.inodes[inode.FD] = *inode
	r.children[key] = inode.FD
	return nil
}

func (r *inodes) Update(_ context.Context, inode *models.Inode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.inodes[inode.FD]
	if !ok {
		return nil
	}
	cur.Capacity = inode.Capacity
	cur.ModifiedAt = inode.ModifiedAt
	r.inodes[inode.FD] = cur
	return nil
}

func (r *inodes) ReserveDirSlot(_ context.Context, fd int64) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.inodes[fd]
	if !ok {
		return 0, 0, fmt.Errorf("memory: no inode %d", fd)
	}
	offset := cur.DirCursor
	cur.DirCursor += models.DirRecordSize
	cur.Capacity = max(cur.Capacity, cur.DirCursor)
	cur.ModifiedAt = time.Now()
	r.inodes[fd] = cur
	return offset, cur.Capacity, nil
}

func (r *inodes) Delete(_ context.Context, fd int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inode, ok := r.inodes[fd]
	if !ok || fd == models.RootFD {
		return nil
	}
	delete(r.inodes, fd)
	delete(r.children, childKey{inode.ParentFD, inode.Component})
	for key := range r.blocks {
		if key.fd == fd {
			delete(r.blocks, key)
		}
	}
	return nil
}

func (r *inodes) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.inodes) - 1), nil
}

type blocks DB

func (r *blocks) Get(_ context.Context, fd, offset int64) (*models.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.blocks[blockKey{fd, offset}]
	if !ok {
		return nil, nil
	}
	return &models.Block{FD: fd, Offset: offset, Info: info}, nil
}

func (r *blocks) Create(_ context.Context, block *models.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := blockKey{block.FD, block.Offset}
	if _, ok := r.blocks[key]; ok {
		return repository.ErrConflict
	}
	r.blocks[key] = block.Info
	return nil
}

func (r *blocks) DeleteAll(_ context.Context, fd int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.blocks {
		if key.fd == fd {
			delete(r.blocks, key)
		}
	}
	return nil
}

type datanodes DB

func (r *datanodes) Register(_ context.Context, node *models.Datanode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.endpoints[node.Info.Key()]; ok {
		cur := r.datanodes[id]
		cur.Info = node.Info
		cur.Capacity = node.Capacity
		node.ID = id
		node.NextAddr = cur.NextAddr
		return nil
	}

	node.ID = r.nextNode
	r.nextNode++
	stored := *node
	r.datanodes[node.ID] = &stored
	r.endpoints[node.Info.Key()] = node.ID
	return nil
}

func (r *datanodes) ListByClass(_ context.Context, storageClass int32) ([]*models.Datanode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Datanode
	for _, node := range r.datanodes {
		if node.Info.StorageClass == storageClass {
			n := *node
			out = append(out, &n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *datanodes) Allocate(_ context.Context, id int64, size int64) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.datanodes[id]
	if !ok || node.NextAddr+size > node.Capacity {
		return 0, false, nil
	}
	addr := node.NextAddr
	node.NextAddr += size
	return addr, true, nil
}
