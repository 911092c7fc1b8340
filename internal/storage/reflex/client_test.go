package reflex_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/S1riyS/pocketfs/internal/datanode"
	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/storage/reflex"
	"github.com/S1riyS/pocketfs/pkg/binary"
)

func connect(t *testing.T) (*reflex.Client, *datanode.Volume) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	vol := datanode.NewVolume(1 << 20)
	srv := datanode.NewReflexServer(vol)
	go srv.Serve(context.Background(), l)
	t.Cleanup(func() { srv.Close() })

	ep, err := models.NewDatanodeInfo(l.Addr().String(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	c := reflex.New(reflex.Options{NoDelay: true, DialTimeout: time.Second})
	if err := c.Connect(context.Background(), ep); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, vol
}

func TestClient_UnalignedWriteIsPaddedAndReadBack(t *testing.T) {
	c, vol := connect(t)

	data := bytes.Repeat([]byte("x"), 1000)
	f, err := c.WriteData(0, 1024, binary.Wrap(data))
	if err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	if n, err := f.Get(); err != nil || n != 1000 {
		t.Fatalf("write Get = %d, %v", n, err)
	}

	// Padding reached the device as zeros.
	raw := make([]byte, 1024)
	if _, err := vol.ReadAt(raw, 1024); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw[:1000], data) || !bytes.Equal(raw[1000:], make([]byte, 24)) {
		t.Error("device contents do not match payload plus zero padding")
	}

	// Exact-size buffer: the padded read must be staged.
	exact := binary.NewBuffer(1000)
	f, err = c.ReadData(0, 1024, exact)
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if n, err := f.Get(); err != nil || n != 1000 {
		t.Fatalf("read Get = %d, %v", n, err)
	}
	if !bytes.Equal(exact.Bytes(), data) {
		t.Error("staged read mismatch")
	}

	// Spare capacity past the limit stays untouched.
	roomy := binary.NewBuffer(2048)
	for i := range roomy.Bytes() {
		roomy.Bytes()[i] = 0xAA
	}
	roomy.SetLimit(1000)
	f, err = c.ReadData(0, 1024, roomy)
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if n, err := f.Get(); err != nil || n != 1000 {
		t.Fatalf("read Get = %d, %v", n, err)
	}
	if !bytes.Equal(roomy.Bytes(), data) {
		t.Error("roomy read mismatch")
	}
	roomy.SetLimit(roomy.Capacity())
	for i, b := range roomy.Bytes()[1000:] {
		if b != 0xAA {
			t.Fatalf("byte %d past the limit = %#x, want 0xaa", 1000+i, b)
		}
	}
}

func TestClient_UnalignedRead(t *testing.T) {
	c, vol := connect(t)

	data := make([]byte, 4*reflex.SectorSize)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if _, err := vol.WriteAt(data, 0); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		address int64
		n       int
	}{
		{"inside one sector", 100, 100},
		{"crosses a sector boundary", 500, 100},
		{"spans several sectors", 300, 1200},
		{"aligned start short length", 512, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := binary.NewBuffer(tt.n)
			f, err := c.ReadData(0, tt.address, buf)
			if err != nil {
				t.Fatalf("ReadData: %v", err)
			}
			if n, err := f.Get(); err != nil || n != tt.n {
				t.Fatalf("Get = %d, %v; want %d", n, err, tt.n)
			}
			if want := data[tt.address : tt.address+int64(tt.n)]; !bytes.Equal(buf.Bytes(), want) {
				t.Error("read does not match volume contents")
			}
		})
	}
}

func TestClient_PipelinedRequests(t *testing.T) {
	c, _ := connect(t)

	var writes []interface{ Get() (int, error) }
	for i := 0; i < 16; i++ {
		f, err := c.WriteData(0, int64(i)*reflex.SectorSize, binary.Wrap(bytes.Repeat([]byte{byte(i)}, reflex.SectorSize)))
		if err != nil {
			t.Fatalf("WriteData %d: %v", i, err)
		}
		writes = append(writes, f)
	}
	// Waiting on the last future drains the earlier ones.
	for i := len(writes) - 1; i >= 0; i-- {
		if _, err := writes[i].Get(); err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
	}

	buf := binary.NewBuffer(16 * reflex.SectorSize)
	f, err := c.ReadData(0, 0, buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Get(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 16; i++ {
		if got := buf.Bytes()[i*reflex.SectorSize]; got != byte(i) {
			t.Errorf("sector %d starts with %d", i, got)
		}
	}
}

func TestClient_Errors(t *testing.T) {
	c, _ := connect(t)

	if _, err := c.WriteData(0, 100, binary.NewBuffer(10)); !errors.Is(err, reflex.ErrUnaligned) {
		t.Errorf("unaligned write = %v, want ErrUnaligned", err)
	}

	// Out of volume range: the node drops the connection.
	f, err := c.ReadData(0, 2<<20, binary.NewBuffer(512))
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if _, err := f.Get(); !errors.Is(err, reflex.ErrTransport) {
		t.Errorf("Get = %v, want ErrTransport", err)
	}

	c.Close()
	if _, err := c.ReadData(0, 0, binary.NewBuffer(512)); !errors.Is(err, reflex.ErrClosed) {
		t.Errorf("ReadData after Close = %v, want ErrClosed", err)
	}
}
