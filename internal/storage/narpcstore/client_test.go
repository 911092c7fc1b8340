package narpcstore_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/S1riyS/pocketfs/internal/datanode"
	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/narpc"
	"github.com/S1riyS/pocketfs/internal/storage"
	"github.com/S1riyS/pocketfs/internal/storage/narpcstore"
	"github.com/S1riyS/pocketfs/pkg/binary"
)

func startNode(t *testing.T, capacity int64) models.DatanodeInfo {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := datanode.NewNaRPCServer(datanode.NewVolume(capacity))
	go srv.Serve(context.Background(), l)
	t.Cleanup(func() { srv.Close() })

	info, err := models.NewDatanodeInfo(l.Addr().String(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	return info
}

func connect(t *testing.T, ep models.DatanodeInfo) *narpcstore.Client {
	t.Helper()
	c := narpcstore.New(narpc.Options{NoDelay: true, DialTimeout: time.Second})
	if err := c.Connect(context.Background(), ep); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_WriteThenRead(t *testing.T) {
	c := connect(t, startNode(t, 1<<20))

	data := bytes.Repeat([]byte("0123456789"), 1000)
	out := binary.Wrap(data)
	f, err := c.WriteData(0, 4096, out)
	if err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	n, err := f.Get()
	if err != nil || n != len(data) {
		t.Fatalf("write Get = %d, %v; want %d", n, err, len(data))
	}

	in := binary.NewBuffer(len(data))
	f, err = c.ReadData(0, 4096, in)
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	n, err = f.Get()
	if err != nil || n != len(data) {
		t.Fatalf("read Get = %d, %v; want %d", n, err, len(data))
	}
	if !bytes.Equal(in.Bytes(), data) {
		t.Error("read back different bytes")
	}
}

func TestClient_NodeFailureIsStorageError(t *testing.T) {
	c := connect(t, startNode(t, 1024))

	f, err := c.ReadData(0, 1000, binary.NewBuffer(100))
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if _, err := f.Get(); !errors.Is(err, storage.ErrStorage) {
		t.Errorf("Get = %v, want ErrStorage", err)
	}

	f, err = c.WriteData(0, 1000, binary.Wrap(make([]byte, 100)))
	if err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	if _, err := f.Get(); !errors.Is(err, storage.ErrStorage) {
		t.Errorf("Get = %v, want ErrStorage", err)
	}

	// The connection survives a node-level failure.
	f, err = c.WriteData(0, 0, binary.Wrap([]byte("ok")))
	if err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	if n, err := f.Get(); err != nil || n != 2 {
		t.Errorf("Get = %d, %v", n, err)
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := narpcstore.New(narpc.Options{})
	if _, err := c.WriteData(0, 0, binary.NewBuffer(1)); !errors.Is(err, narpc.ErrNotConnected) {
		t.Errorf("WriteData = %v, want ErrNotConnected", err)
	}
}

func TestClient_ShortReadPayloadIsStorageError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	// The node claims 100 bytes but ships only 10.
	srv := narpc.NewServer(narpc.HandlerFunc(func(_ context.Context, req *binary.Buffer) (narpc.Message, error) {
		if _, err := narpcstore.DecodeRequest(req); err != nil {
			return nil, err
		}
		return &narpcstore.ReadResponse{
			Type:   narpcstore.RequestRead,
			Length: 100,
			Data:   binary.Wrap(bytes.Repeat([]byte{0x11}, 10)),
		}, nil
	}))
	go srv.Serve(context.Background(), l)
	t.Cleanup(func() { srv.Close() })

	ep, err := models.NewDatanodeInfo(l.Addr().String(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	c := connect(t, ep)

	f, err := c.ReadData(0, 0, binary.NewBuffer(100))
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if n, err := f.Get(); !errors.Is(err, storage.ErrStorage) {
		t.Errorf("Get = %d, %v; want ErrStorage", n, err)
	}
}
