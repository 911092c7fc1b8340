package store_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/S1riyS/pocketfs/internal/cluster"
	"github.com/S1riyS/pocketfs/internal/config"
	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/namenode"
	"github.com/S1riyS/pocketfs/internal/store"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
)

const (
	classNaRPC  = 0
	classReflex = 1
)

func newStore(t *testing.T) (*store.Store, context.Context) {
	t.Helper()

	ctx := logging.MakeContextWithLogger(context.Background(), logging.Discard())

	c, err := cluster.Start(ctx, &config.Config{
		Namenode: config.NamenodeConfig{ListenAddress: "127.0.0.1:0", Repository: config.RepositoryMemory},
		Datanodes: []config.DatanodeConfig{
			{Address: "127.0.0.1:0", Kind: config.DatanodeKindNaRPC, StorageClass: classNaRPC, Capacity: 64 * models.BlockSize},
			{Address: "127.0.0.1:0", Kind: config.DatanodeKindReflex, StorageClass: classReflex, Capacity: 64 * models.BlockSize},
		},
	})
	if err != nil {
		t.Fatalf("cluster.Start: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	s, err := store.Dial(ctx, config.ClientConfig{
		NamenodeAddress: c.Addr(),
		NoDelay:         true,
		DialTimeout:     time.Second,
		BufferSize:      models.BufferSize,
	})
	if err != nil {
		t.Fatalf("store.Dial: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s, ctx
}

func createFile(t *testing.T, ctx context.Context, s *store.Store, path string, class int32) *store.File {
	t.Helper()
	node, err := s.Create(ctx, path, models.NodeTypeFile, class, 0, true)
	if err != nil {
		t.Fatalf("Create(%s): %v", path, err)
	}
	f, ok := node.(*store.File)
	if !ok {
		t.Fatalf("Create(%s) returned %T, want *store.File", path, node)
	}
	return f
}

func writeFile(t *testing.T, ctx context.Context, f *store.File, data []byte) {
	t.Helper()
	out := f.OutputStream()
	if _, err := out.WriteAll(ctx, binary.Wrap(data)); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if err := out.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func readFile(t *testing.T, ctx context.Context, s *store.Store, path string) []byte {
	t.Helper()
	node, err := s.Lookup(ctx, path)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", path, err)
	}
	f := node.(*store.File)

	buf := binary.NewBuffer(int(f.Info().Capacity))
	in := f.InputStream()
	if _, err := in.ReadFull(ctx, buf); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("ReadFull: %v", err)
	}
	if n, err := in.Read(ctx, binary.NewBuffer(1)); n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("Read at end = %d, %v; want 0, io.EOF", n, err)
	}
	return buf.Flip().Bytes()
}

func TestStore_OneBlockRoundTrip(t *testing.T) {
	s, ctx := newStore(t)

	f := createFile(t, ctx, s, "/one", classNaRPC)
	data := bytes.Repeat([]byte("pocket"), 200)
	writeFile(t, ctx, f, data)

	got := readFile(t, ctx, s, "/one")
	if !bytes.Equal(got, data) {
		t.Fatalf("read %d bytes, want %d equal bytes", len(got), len(data))
	}
}

func TestStore_MultiBlockRoundTrip(t *testing.T) {
	for _, class := range []int32{classNaRPC, classReflex} {
		s, ctx := newStore(t)

		f := createFile(t, ctx, s, "/big", class)
		data := make([]byte, 3*models.BlockSize+1024)
		for i := range data {
			data[i] = byte(i * 7)
		}
		writeFile(t, ctx, f, data)

		if got := readFile(t, ctx, s, "/big"); !bytes.Equal(got, data) {
			t.Errorf("class %d: multi-block round trip mismatch", class)
		}
	}
}

func TestOutputStream_ClampsToBlockBoundary(t *testing.T) {
	s, ctx := newStore(t)

	f := createFile(t, ctx, s, "/clamp", classNaRPC)
	out := f.OutputStream()

	buf := binary.Wrap(make([]byte, models.BlockSize+100))
	n, err := out.Write(ctx, buf)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != models.BlockSize {
		t.Errorf("first Write = %d, want %d", n, models.BlockSize)
	}
	if buf.Limit() != models.BlockSize+100 {
		t.Errorf("limit = %d, want it restored to %d", buf.Limit(), models.BlockSize+100)
	}
	if buf.Remaining() != 100 || out.Position() != models.BlockSize {
		t.Errorf("remaining=%d position=%d", buf.Remaining(), out.Position())
	}

	n, err = out.Write(ctx, buf)
	if err != nil || n != 100 {
		t.Fatalf("second Write = %d, %v; want 100", n, err)
	}

	if n, err := out.Write(ctx, buf); n != 0 || err != nil {
		t.Errorf("Write of empty buffer = %d, %v", n, err)
	}
	if err := out.Close(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestOutputStream_UsesSeededBlock(t *testing.T) {
	s, ctx := newStore(t)

	f := createFile(t, ctx, s, "/cached", classNaRPC)
	out := f.OutputStream()
	if _, err := out.Write(ctx, binary.Wrap([]byte("hello"))); err != nil {
		t.Fatal(err)
	}

	cache := s.Blocks().Get(f.Info().FD)
	if cache.Misses() != 0 || cache.Hits() != 1 {
		t.Errorf("first block: hits=%d misses=%d, want 1/0", cache.Hits(), cache.Misses())
	}

	// Second block needs one GetBlock, later writes to it do not.
	if _, err := out.WriteAll(ctx, binary.Wrap(make([]byte, models.BlockSize))); err != nil {
		t.Fatal(err)
	}
	if cache.Misses() != 1 {
		t.Errorf("misses = %d after crossing into block 2, want 1", cache.Misses())
	}
	if _, err := out.Write(ctx, binary.Wrap([]byte("more"))); err != nil {
		t.Fatal(err)
	}
	if cache.Misses() != 1 {
		t.Errorf("misses = %d after rewriting block 2, want 1", cache.Misses())
	}
}

func TestStore_CreateLookupIdentity(t *testing.T) {
	s, ctx := newStore(t)

	created := createFile(t, ctx, s, "/same", classNaRPC)
	node, err := s.Lookup(ctx, "/same")
	if err != nil {
		t.Fatal(err)
	}

	a, b := created.Info(), node.Info()
	if a.FD != b.FD || a.Token != b.Token || a.Type != b.Type || a.DirOffset != b.DirOffset {
		t.Errorf("lookup = %+v, create = %+v", b, a)
	}
}

func TestStore_RemoveThenLookup(t *testing.T) {
	s, ctx := newStore(t)

	createFile(t, ctx, s, "/gone", classNaRPC)
	if err := s.Remove(ctx, "/gone", false); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Lookup(ctx, "/gone"); !errors.Is(err, namenode.ErrNotFound) {
		t.Errorf("Lookup after Remove = %v, want ErrNotFound", err)
	}
	if err := s.Remove(ctx, "/gone", false); !errors.Is(err, namenode.ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
}

func TestDirectory_Enumerate(t *testing.T) {
	s, ctx := newStore(t)

	if _, err := s.Create(ctx, "/dir", models.NodeTypeDirectory, classNaRPC, 0, true); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a", "b", "c"} {
		createFile(t, ctx, s, "/dir/"+name, classNaRPC)
	}
	if _, err := s.Create(ctx, "/dir/hidden", models.NodeTypeFile, classNaRPC, 0, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, "/dir/b", false); err != nil {
		t.Fatal(err)
	}

	node, err := s.Lookup(ctx, "/dir")
	if err != nil {
		t.Fatal(err)
	}
	dir, ok := node.(*store.Directory)
	if !ok {
		t.Fatalf("Lookup returned %T", node)
	}
	names, err := dir.Enumerate(ctx)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if !slices.Equal(names, []string{"a", "c"}) {
		t.Errorf("Enumerate = %v, want [a c]", names)
	}

	count, err := s.Ioctl(ctx, namenode.IoctlCountFiles, "/dir")
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("CountFiles = %d, want 3", count)
	}

	root, err := s.Lookup(ctx, "/")
	if err != nil {
		t.Fatal(err)
	}
	names, err = root.(*store.Directory).Enumerate(ctx)
	if err != nil || !slices.Equal(names, []string{"dir"}) {
		t.Errorf("root Enumerate = %v, %v", names, err)
	}
}

func TestStore_Rejections(t *testing.T) {
	s, ctx := newStore(t)

	if _, err := s.Create(ctx, "/d", models.NodeTypeDirectory, classNaRPC, 0, true); err != nil {
		t.Fatal(err)
	}
	createFile(t, ctx, s, "/d/f", classNaRPC)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate", createErr(ctx, s, "/d/f"), namenode.ErrExists},
		{"missing parent", createErr(ctx, s, "/nope/f"), namenode.ErrParentMissing},
		{"through a file", createErr(ctx, s, "/d/f/x"), namenode.ErrNotDirectory},
		{"non-empty dir", s.Remove(ctx, "/d", false), namenode.ErrNotEmpty},
		{"no storage class", createErrClass(ctx, s, "/d/g", 7), namenode.ErrNoFreeBlocks},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, tt.err, tt.want)
		}
	}

	if err := s.Remove(ctx, "/d", true); err != nil {
		t.Fatalf("recursive Remove: %v", err)
	}
	if _, err := s.Lookup(ctx, "/d/f"); !errors.Is(err, namenode.ErrNotFound) {
		t.Errorf("child survived recursive remove: %v", err)
	}
}

func createErr(ctx context.Context, s *store.Store, path string) error {
	return createErrClass(ctx, s, path, classNaRPC)
}

func createErrClass(ctx context.Context, s *store.Store, path string, class int32) error {
	_, err := s.Create(ctx, path, models.NodeTypeFile, class, 0, true)
	return err
}

func TestStream_InvalidUse(t *testing.T) {
	s, ctx := newStore(t)

	f := createFile(t, ctx, s, "/misuse", classNaRPC)
	out := f.OutputStream()

	if _, err := out.Write(ctx, nil); !errors.Is(err, store.ErrInvalidBuffer) {
		t.Errorf("Write(nil) = %v, want ErrInvalidBuffer", err)
	}
	if err := out.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := out.Write(ctx, binary.Wrap([]byte("x"))); !errors.Is(err, store.ErrStreamClosed) {
		t.Errorf("Write after Close = %v, want ErrStreamClosed", err)
	}

	if _, err := s.Lookup(ctx, "relative"); !errors.Is(err, models.ErrInvalidPath) {
		t.Errorf("Lookup(relative) = %v, want ErrInvalidPath", err)
	}
}

func TestInputStream_SmallChunks(t *testing.T) {
	for _, class := range []int32{classNaRPC, classReflex} {
		s, ctx := newStore(t)

		f := createFile(t, ctx, s, "/chunks", class)
		data := make([]byte, 1024)
		for i := range data {
			data[i] = byte(i % 253)
		}
		writeFile(t, ctx, f, data)

		in := f.InputStream()
		var got []byte
		for {
			buf := binary.NewBuffer(100)
			n, err := in.Read(ctx, buf)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("class %d: Read at %d: %v", class, len(got), err)
			}
			got = append(got, buf.Flip().Bytes()[:n]...)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("class %d: chunked read returned %d bytes, want %d equal bytes", class, len(got), len(data))
		}
	}
}
