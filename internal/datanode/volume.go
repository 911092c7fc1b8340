// Package datanode implements in-memory storage nodes for development and
// tests. Data does not survive a restart.
package datanode

import (
	"errors"
	"fmt"
	"sync"
)

const pageSize = 64 << 10

var ErrOutOfRange = errors.New("datanode: access beyond volume capacity")

// Volume is a sparse byte array. Pages are allocated on first write and
// unwritten ranges read as zeros.
type Volume struct {
	capacity int64

	mu    sync.RWMutex
	pages map[int64][]byte
}

func NewVolume(capacity int64) *Volume {
	return &Volume{
		capacity: capacity,
		pages:    make(map[int64][]byte),
	}
}

func (v *Volume) Capacity() int64 {
	return v.capacity
}

func (v *Volume) check(n int, off int64) error {
	if off < 0 || off+int64(n) > v.capacity {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, off, off+int64(n), v.capacity)
	}
	return nil
}

func (v *Volume) WriteAt(p []byte, off int64) (int, error) {
	if err := v.check(len(p), off); err != nil {
		return 0, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	written := 0
	for written < len(p) {
		pos := off + int64(written)
		idx, inPage := pos/pageSize, int(pos%pageSize)
		page, ok := v.pages[idx]
		if !ok {
			page = make([]byte, pageSize)
			v.pages[idx] = page
		}
		written += copy(page[inPage:], p[written:])
	}
	return written, nil
}

func (v *Volume) ReadAt(p []byte, off int64) (int, error) {
	if err := v.check(len(p), off); err != nil {
		return 0, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	read := 0
	for read < len(p) {
		pos := off + int64(read)
		idx, inPage := pos/pageSize, int(pos%pageSize)
		n := min(pageSize-inPage, len(p)-read)
		if page, ok := v.pages[idx]; ok {
			copy(p[read:read+n], page[inPage:inPage+n])
		} else {
			clear(p[read : read+n])
		}
		read += n
	}
	return read, nil
}

// Pages reports how many pages hold data.
func (v *Volume) Pages() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.pages)
}
