package blockcache

import (
	"testing"

	"github.com/S1riyS/pocketfs/internal/models"
)

func TestAlign(t *testing.T) {
	tests := []struct {
		offset, want int64
	}{
		{0, 0},
		{1, 0},
		{models.BlockSize - 1, 0},
		{models.BlockSize, models.BlockSize},
		{3*models.BlockSize + 17, 3 * models.BlockSize},
	}
	for _, tt := range tests {
		if got := Align(tt.offset); got != tt.want {
			t.Errorf("Align(%d) = %d, want %d", tt.offset, got, tt.want)
		}
	}
}

func TestCache_GetPut(t *testing.T) {
	c := New(7)
	if _, ok := c.Get(0); ok {
		t.Fatal("empty cache hit")
	}

	block := models.BlockInfo{Addr: 4096, Length: models.BlockSize}
	c.Put(100, block)

	got, ok := c.Get(models.BlockSize - 1)
	if !ok || got != block {
		t.Fatalf("Get inside block = %v, %v; want %v", got, ok, block)
	}
	if _, ok := c.Get(models.BlockSize); ok {
		t.Error("next block hit")
	}

	if c.Hits() != 1 || c.Misses() != 2 {
		t.Errorf("hits=%d misses=%d, want 1/2", c.Hits(), c.Misses())
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	a := r.Get(1)
	if r.Get(1) != a {
		t.Error("Get returned a different cache for the same fd")
	}
	if r.Get(2) == a {
		t.Error("different fds share a cache")
	}
	if a.FD() != 1 {
		t.Errorf("FD = %d, want 1", a.FD())
	}

	a.Put(0, models.BlockInfo{Addr: 1})
	r.Drop(1)
	if r.Len() != 1 {
		t.Errorf("Len = %d after Drop, want 1", r.Len())
	}
	if _, ok := r.Get(1).Get(0); ok {
		t.Error("dropped cache still populated")
	}
}
