package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/pkg/binary"
)

type fakeClient struct {
	kind       Kind
	connects   *atomic.Int32
	connectErr error
	closeErr   error
	closed     bool
}

func (f *fakeClient) Connect(context.Context, models.DatanodeInfo) error {
	f.connects.Add(1)
	return f.connectErr
}

func (f *fakeClient) Close() error {
	f.closed = true
	return f.closeErr
}

func (f *fakeClient) WriteData(int32, int64, *binary.Buffer) (Future, error) { return nil, nil }
func (f *fakeClient) ReadData(int32, int64, *binary.Buffer) (Future, error)  { return nil, nil }

func endpoint(port int32, class int32) models.DatanodeInfo {
	return models.DatanodeInfo{IP: [4]byte{127, 0, 0, 1}, Port: port, StorageClass: class}
}

func TestCache_MemoizesPerEndpoint(t *testing.T) {
	var connects atomic.Int32
	var made []*fakeClient
	factory := func(kind Kind) Factory {
		return func() Client {
			c := &fakeClient{kind: kind, connects: &connects}
			made = append(made, c)
			return c
		}
	}
	cache := NewCache(Factories{KindNaRPC: factory(KindNaRPC), KindReflex: factory(KindReflex)})
	ctx := context.Background()

	a1, err := cache.Get(ctx, endpoint(1000, 0))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	a2, err := cache.Get(ctx, endpoint(1000, 0))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a1 != a2 {
		t.Error("same endpoint returned different clients")
	}
	if connects.Load() != 1 {
		t.Errorf("connects = %d, want 1", connects.Load())
	}

	b, err := cache.Get(ctx, endpoint(1001, 0))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b == a1 {
		t.Error("different endpoints share a client")
	}

	r, err := cache.Get(ctx, endpoint(2000, 3))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.(*fakeClient).kind != KindReflex {
		t.Errorf("class 3 endpoint got %s backend", r.(*fakeClient).kind)
	}
	if cache.Len() != 3 {
		t.Errorf("Len = %d, want 3", cache.Len())
	}

	if err := cache.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for i, c := range made {
		if !c.closed {
			t.Errorf("client %d not closed", i)
		}
	}
	if _, err := cache.Get(ctx, endpoint(1000, 0)); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Get after Close = %v, want ErrCacheClosed", err)
	}
}

func TestCache_FailedConnectNotCached(t *testing.T) {
	var connects atomic.Int32
	fail := errors.New("refused")
	attempt := 0
	cache := NewCache(Factories{KindNaRPC: func() Client {
		attempt++
		c := &fakeClient{connects: &connects}
		if attempt == 1 {
			c.connectErr = fail
		}
		return c
	}})

	if _, err := cache.Get(context.Background(), endpoint(1, 0)); !errors.Is(err, fail) {
		t.Fatalf("first Get = %v, want %v", err, fail)
	}
	if cache.Len() != 0 {
		t.Errorf("failed client cached")
	}
	if _, err := cache.Get(context.Background(), endpoint(1, 0)); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if connects.Load() != 2 {
		t.Errorf("connects = %d, want 2", connects.Load())
	}
}

func TestCache_UnknownKindAndCloseErrors(t *testing.T) {
	var connects atomic.Int32
	boom := errors.New("close failed")
	cache := NewCache(Factories{KindNaRPC: func() Client {
		return &fakeClient{connects: &connects, closeErr: boom}
	}})

	if _, err := cache.Get(context.Background(), endpoint(1, 2)); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Get = %v, want ErrUnknownKind", err)
	}

	if _, err := cache.Get(context.Background(), endpoint(1, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Get(context.Background(), endpoint(2, 0)); err != nil {
		t.Fatal(err)
	}
	if err := cache.Close(); !errors.Is(err, boom) {
		t.Errorf("Close = %v, want joined %v", err, boom)
	}
}
