// Package blockcache remembers where file blocks live so streams can skip the
// GetBlock round trip for blocks they have already resolved.
package blockcache

import (
	"sync"
	"sync/atomic"

	"github.com/S1riyS/pocketfs/internal/models"
)

// Cache maps block-aligned offsets of one file to block locations.
type Cache struct {
	fd int64

	mu     sync.RWMutex
	blocks map[int64]models.BlockInfo

	hits   atomic.Int64
	misses atomic.Int64
}

func New(fd int64) *Cache {
	return &Cache{fd: fd, blocks: make(map[int64]models.BlockInfo)}
}

func (c *Cache) FD() int64 { return c.fd }

// Align rounds offset down to the start of its block.
func Align(offset int64) int64 {
	return offset - offset%models.BlockSize
}

// Get looks up the block covering offset.
func (c *Cache) Get(offset int64) (models.BlockInfo, bool) {
	c.mu.RLock()
	block, ok := c.blocks[Align(offset)]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return block, ok
}

// Put records the block covering offset, replacing any previous entry.
func (c *Cache) Put(offset int64, block models.BlockInfo) {
	c.mu.Lock()
	c.blocks[Align(offset)] = block
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

func (c *Cache) Hits() int64   { return c.hits.Load() }
func (c *Cache) Misses() int64 { return c.misses.Load() }

// Registry holds one Cache per file descriptor.
type Registry struct {
	mu     sync.Mutex
	caches map[int64]*Cache
}

func NewRegistry() *Registry {
	return &Registry{caches: make(map[int64]*Cache)}
}

// Get returns the cache for fd, creating an empty one on first use.
func (r *Registry) Get(fd int64) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caches[fd]
	if !ok {
		c = New(fd)
		r.caches[fd] = c
	}
	return c
}

// Drop forgets fd. Descriptors of removed files may be reused by the
// metadata service.
func (r *Registry) Drop(fd int64) {
	r.mu.Lock()
	delete(r.caches, fd)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.caches)
}
