package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/repository"
)

func TestInodes_CreateAndChildren(t *testing.T) {
	ctx := context.Background()
	db := New()
	inodes := db.Inodes()

	root, err := inodes.Get(ctx, models.RootFD)
	if err != nil || root == nil || !root.IsDir() {
		t.Fatalf("root = %+v, %v", root, err)
	}

	a := &models.Inode{ParentFD: models.RootFD, Component: 11, Name: "a", Type: models.NodeTypeFile}
	if err := inodes.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.FD == models.RootFD {
		t.Fatal("Create assigned the root fd")
	}

	dup := &models.Inode{ParentFD: models.RootFD, Component: 11, Name: "a"}
	if err := inodes.Create(ctx, dup); !errors.Is(err, repository.ErrConflict) {
		t.Errorf("duplicate Create = %v, want ErrConflict", err)
	}

	got, err := inodes.GetChild(ctx, models.RootFD, 11)
	if err != nil || got == nil || got.FD != a.FD {
		t.Fatalf("GetChild = %+v, %v", got, err)
	}

	// Returned inodes are copies.
	got.Capacity = 99
	again, _ := inodes.Get(ctx, a.FD)
	if again.Capacity != 0 {
		t.Error("mutating a returned inode changed the store")
	}

	if n, _ := inodes.CountChildren(ctx, models.RootFD); n != 1 {
		t.Errorf("CountChildren = %d, want 1", n)
	}
	if n, _ := inodes.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}

	if err := inodes.Delete(ctx, a.FD); err != nil {
		t.Fatal(err)
	}
	if got, _ := inodes.GetChild(ctx, models.RootFD, 11); got != nil {
		t.Error("child still present after Delete")
	}
}

func TestDatanodes_AllocateUntilFull(t *testing.T) {
	ctx := context.Background()
	repo := New().Datanodes()

	node := &models.Datanode{Info: models.DatanodeInfo{IP: [4]byte{127, 0, 0, 1}, Port: 9000}, Capacity: 2 * models.BlockSize}
	if err := repo.Register(ctx, node); err != nil {
		t.Fatal(err)
	}

	for want := int64(0); want < 2*models.BlockSize; want += models.BlockSize {
		addr, ok, err := repo.Allocate(ctx, node.ID, models.BlockSize)
		if err != nil || !ok || addr != want {
			t.Fatalf("Allocate = %d, %v, %v; want %d", addr, ok, err, want)
		}
	}
	if _, ok, _ := repo.Allocate(ctx, node.ID, models.BlockSize); ok {
		t.Error("Allocate succeeded on a full node")
	}

	// Re-registering keeps allocation state.
	again := &models.Datanode{Info: node.Info, Capacity: 4 * models.BlockSize}
	if err := repo.Register(ctx, again); err != nil {
		t.Fatal(err)
	}
	if again.ID != node.ID || again.NextAddr != 2*models.BlockSize {
		t.Errorf("re-register = id %d next %d", again.ID, again.NextAddr)
	}

	nodes, _ := repo.ListByClass(ctx, 0)
	if len(nodes) != 1 {
		t.Errorf("ListByClass = %d nodes, want 1", len(nodes))
	}
}

func TestBlocks_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := New().Blocks()

	b := &models.Block{FD: 3, Offset: models.BlockSize, Info: models.BlockInfo{Addr: 42, Length: models.BlockSize}}
	if err := repo.Create(ctx, b); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, b); !errors.Is(err, repository.ErrConflict) {
		t.Errorf("duplicate Create = %v", err)
	}

	got, err := repo.Get(ctx, 3, models.BlockSize)
	if err != nil || got == nil || got.Info.Addr != 42 {
		t.Fatalf("Get = %+v, %v", got, err)
	}

	if err := repo.DeleteAll(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if got, _ := repo.Get(ctx, 3, models.BlockSize); got != nil {
		t.Error("block survived DeleteAll")
	}
}
