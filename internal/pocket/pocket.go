// Package pocket is the ephemeral-storage API applications use: whole-file
// and whole-buffer puts and gets on top of a store.
package pocket

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/zeebo/blake3"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/namenode"
	"github.com/S1riyS/pocketfs/internal/store"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

var (
	ErrNotFile      = errors.New("pocket: not a file")
	ErrNotDirectory = errors.New("pocket: not a directory")
)

// Digest is the BLAKE3-256 sum of the bytes a transfer moved.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Transfer describes one completed put or get.
type Transfer struct {
	Bytes  int64
	Digest Digest
}

type Dispatcher struct {
	store        *store.Store
	storageClass int32
	bufferSize   int
}

type Option func(*Dispatcher)

// WithStorageClass places new files and directories on storage class c.
func WithStorageClass(c int32) Option {
	return func(d *Dispatcher) { d.storageClass = c }
}

func WithBufferSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.bufferSize = n
		}
	}
}

func New(s *store.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{store: s, bufferSize: models.BufferSize}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) MakeDir(ctx context.Context, name string) error {
	const op = "pocket.Dispatcher.MakeDir"

	if _, err := d.store.Create(ctx, name, models.NodeTypeDirectory, d.storageClass, 0, true); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (d *Dispatcher) Lookup(ctx context.Context, name string) (models.FileInfo, error) {
	const op = "pocket.Dispatcher.Lookup"

	node, err := d.store.Lookup(ctx, name)
	if err != nil {
		return models.FileInfo{}, fmt.Errorf("%s: %w", op, err)
	}
	return node.Info(), nil
}

// Enumerate lists the enumerable entries of a directory.
func (d *Dispatcher) Enumerate(ctx context.Context, name string) ([]string, error) {
	const op = "pocket.Dispatcher.Enumerate"

	node, err := d.store.Lookup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	dir, ok := node.(*store.Directory)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrNotDirectory, name)
	}

	names, err := dir.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return names, nil
}

// PutFile copies a local file into a new file at dst.
func (d *Dispatcher) PutFile(ctx context.Context, local, dst string, enumerable bool) (Transfer, error) {
	const op = "pocket.Dispatcher.PutFile"

	logger := logging.GetLoggerFromContextWithOp(ctx, op).With(slog.String("local", local), slog.String("dst", dst))

	f, err := os.Open(local)
	if err != nil {
		return Transfer{}, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	file, err := d.createFile(ctx, dst, enumerable)
	if err != nil {
		return Transfer{}, fmt.Errorf("%s: %w", op, err)
	}

	out := file.OutputStream()
	hasher := blake3.New()
	buf := binary.NewBuffer(d.bufferSize)
	var total int64

	for {
		buf.Clear()
		n, rerr := io.ReadFull(f, buf.Bytes())
		if n > 0 {
			buf.SetLimit(n)
			hasher.Write(buf.Bytes())
			if _, err := out.WriteAll(ctx, buf); err != nil {
				logger.Error("Failed to write", slogext.Err(err), slog.Int64("offset", total))
				return Transfer{}, fmt.Errorf("%s: %w", op, err)
			}
			total += int64(n)
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return Transfer{}, fmt.Errorf("%s: %w", op, rerr)
		}
	}

	if err := out.Close(ctx); err != nil {
		return Transfer{}, fmt.Errorf("%s: %w", op, err)
	}

	t := Transfer{Bytes: total, Digest: sum(hasher)}
	logger.Debug("Put file", slog.Int64("bytes", total), slog.String("blake3", t.Digest.String()))
	return t, nil
}

// GetFile copies the file at src into a local file, replacing it.
func (d *Dispatcher) GetFile(ctx context.Context, src, local string) (Transfer, error) {
	const op = "pocket.Dispatcher.GetFile"

	logger := logging.GetLoggerFromContextWithOp(ctx, op).With(slog.String("src", src), slog.String("local", local))

	file, err := d.lookupFile(ctx, src)
	if err != nil {
		return Transfer{}, fmt.Errorf("%s: %w", op, err)
	}

	f, err := os.Create(local)
	if err != nil {
		return Transfer{}, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	in := file.InputStream()
	defer in.Close()

	hasher := blake3.New()
	w := io.MultiWriter(f, hasher)
	buf := binary.NewBuffer(d.bufferSize)
	var total int64

	for {
		buf.Clear()
		_, err := in.ReadFull(ctx, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Error("Failed to read", slogext.Err(err), slog.Int64("offset", total))
			return Transfer{}, fmt.Errorf("%s: %w", op, err)
		}
		n, err := w.Write(buf.Flip().Bytes())
		total += int64(n)
		if err != nil {
			return Transfer{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := f.Close(); err != nil {
		return Transfer{}, fmt.Errorf("%s: %w", op, err)
	}

	t := Transfer{Bytes: total, Digest: sum(hasher)}
	logger.Debug("Got file", slog.Int64("bytes", total), slog.String("blake3", t.Digest.String()))
	return t, nil
}

// PutBuffer stores data as a new file at dst.
func (d *Dispatcher) PutBuffer(ctx context.Context, data []byte, dst string, enumerable bool) (Transfer, error) {
	const op = "pocket.Dispatcher.PutBuffer"

	file, err := d.createFile(ctx, dst, enumerable)
	if err != nil {
		return Transfer{}, fmt.Errorf("%s: %w", op, err)
	}

	out := file.OutputStream()
	if _, err := out.WriteAll(ctx, binary.Wrap(data)); err != nil {
		return Transfer{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := out.Close(ctx); err != nil {
		return Transfer{}, fmt.Errorf("%s: %w", op, err)
	}

	return Transfer{Bytes: int64(len(data)), Digest: Digest(blake3.Sum256(data))}, nil
}

// GetBuffer reads the first n bytes of src. A file shorter than n yields
// io.ErrUnexpectedEOF.
func (d *Dispatcher) GetBuffer(ctx context.Context, src string, n int) ([]byte, error) {
	const op = "pocket.Dispatcher.GetBuffer"

	file, err := d.lookupFile(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if n <= 0 {
		return []byte{}, nil
	}

	in := file.InputStream()
	defer in.Close()

	buf := binary.NewBuffer(n)
	read, err := in.ReadFull(ctx, buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if read < n {
		return nil, fmt.Errorf("%s: %w: %d of %d bytes", op, io.ErrUnexpectedEOF, read, n)
	}
	return buf.Flip().Bytes(), nil
}

func (d *Dispatcher) DeleteFile(ctx context.Context, name string) error {
	const op = "pocket.Dispatcher.DeleteFile"

	if err := d.store.Remove(ctx, name, false); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteDir removes a directory and everything below it.
func (d *Dispatcher) DeleteDir(ctx context.Context, name string) error {
	const op = "pocket.Dispatcher.DeleteDir"

	if err := d.store.Remove(ctx, name, true); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CountFiles returns the number of direct children of a directory,
// enumerable or not.
func (d *Dispatcher) CountFiles(ctx context.Context, dir string) (int64, error) {
	const op = "pocket.Dispatcher.CountFiles"

	n, err := d.store.Ioctl(ctx, namenode.IoctlCountFiles, dir)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (d *Dispatcher) createFile(ctx context.Context, path string, enumerable bool) (*store.File, error) {
	node, err := d.store.Create(ctx, path, models.NodeTypeFile, d.storageClass, 0, enumerable)
	if err != nil {
		return nil, err
	}
	file, ok := node.(*store.File)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFile, path)
	}
	return file, nil
}

func (d *Dispatcher) lookupFile(ctx context.Context, path string) (*store.File, error) {
	node, err := d.store.Lookup(ctx, path)
	if err != nil {
		return nil, err
	}
	file, ok := node.(*store.File)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFile, path)
	}
	return file, nil
}

func sum(h *blake3.Hasher) Digest {
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
