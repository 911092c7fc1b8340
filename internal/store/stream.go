package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/S1riyS/pocketfs/internal/blockcache"
	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/namenode"
	"github.com/S1riyS/pocketfs/internal/storage"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

var (
	ErrInvalidBuffer = errors.New("store: invalid buffer")
	ErrStreamClosed  = errors.New("store: stream closed")
	ErrShortTransfer = errors.New("store: storage node moved an unexpected byte count")
)

// stream is the state shared by input and output streams: one file, a
// logical position and the caches used to reach its blocks.
type stream struct {
	file     models.FileInfo
	position int64
	closed   bool

	namenode *namenode.Client
	storage  *storage.Cache
	blocks   *blockcache.Cache
}

func (s *stream) Position() int64 { return s.position }

func (s *stream) File() models.FileInfo { return s.file }

// block resolves the block covering the current position, asking the
// metadata service only on a cache miss.
func (s *stream) block(ctx context.Context) (models.BlockInfo, error) {
	if block, ok := s.blocks.Get(s.position); ok {
		return block, nil
	}

	f, err := s.namenode.GetBlock(ctx, s.file.FD, s.file.Token, s.position, s.position)
	if err != nil {
		return models.BlockInfo{}, err
	}
	resp, err := f.Get()
	if err != nil {
		return models.BlockInfo{}, err
	}

	s.blocks.Put(s.position, resp.Block)
	return resp.Block, nil
}

type transferFunc func(c storage.Client, key int32, address int64, buf *binary.Buffer) (storage.Future, error)

// transfer moves buf's remaining bytes, clamped to the current block and to
// bound, between the caller and the block's storage node. The limit of buf is
// restored whatever happens; position and cursor move only on success.
func (s *stream) transfer(ctx context.Context, op string, buf *binary.Buffer, bound int64, do transferFunc) (int, error) {
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	origLimit := buf.Limit()
	defer buf.SetLimit(origLimit)

	blockOffset := s.position % models.BlockSize
	n := int64(buf.Remaining())
	n = min(n, models.BlockSize-blockOffset, bound)
	buf.SetLimit(buf.Position() + int(n))

	block, err := s.block(ctx)
	if err != nil {
		logger.Error("Failed to resolve block", slogext.Err(err), slog.Int64("position", s.position))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	client, err := s.storage.Get(ctx, block.Datanode)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	f, err := do(client, block.LKey, block.Addr+blockOffset, buf)
	if err != nil {
		logger.Error("Failed to issue transfer", slogext.Err(err), slog.String("block", block.String()))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	moved, err := f.Get()
	if err != nil {
		logger.Error("Transfer failed", slogext.Err(err), slog.String("block", block.String()))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if moved < 0 || moved > buf.Remaining() {
		return 0, fmt.Errorf("%s: %w: %d of %d", op, ErrShortTransfer, moved, buf.Remaining())
	}

	buf.SetPosition(buf.Position() + moved)
	s.position += int64(moved)

	logger.Debug("Transferred", slog.Int64("fd", s.file.FD), slog.Int("bytes", moved), slog.Int64("position", s.position))
	return moved, nil
}

// OutputStream writes a file sequentially from its starting position.
type OutputStream struct {
	stream
}

func newOutputStream(s *Store, file models.FileInfo, position int64) *OutputStream {
	return &OutputStream{stream{
		file:     file,
		position: position,
		namenode: s.namenode,
		storage:  s.storage,
		blocks:   s.blocks.Get(file.FD),
	}}
}

// Write stores buf's remaining bytes, at most up to the end of the current
// block. It returns the number of bytes written and advances buf by as much;
// callers loop until buf is drained.
func (o *OutputStream) Write(ctx context.Context, buf *binary.Buffer) (int, error) {
	const op = "store.OutputStream.Write"

	switch {
	case o.closed:
		return 0, fmt.Errorf("%s: %w", op, ErrStreamClosed)
	case buf == nil || buf.Remaining() < 0:
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidBuffer)
	case buf.Remaining() == 0:
		return 0, nil
	}

	return o.transfer(ctx, op, buf, models.BlockSize, storage.Client.WriteData)
}

// WriteAll writes buf until it is drained.
func (o *OutputStream) WriteAll(ctx context.Context, buf *binary.Buffer) (int, error) {
	total := 0
	for buf.Remaining() > 0 {
		n, err := o.Write(ctx, buf)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close publishes the file's new capacity. The stream is closed even if the
// metadata update fails.
func (o *OutputStream) Close(ctx context.Context) error {
	const op = "store.OutputStream.Close"

	if o.closed {
		return nil
	}
	o.closed = true

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	o.file.Capacity = o.position
	f, err := o.namenode.SetFile(ctx, o.file, true)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := f.Get(); err != nil {
		logger.Error("Failed to publish file capacity", slogext.Err(err), slog.Int64("fd", o.file.FD))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Stream closed", slog.Int64("fd", o.file.FD), slog.Int64("capacity", o.file.Capacity))
	return nil
}

// InputStream reads a file sequentially up to its capacity.
type InputStream struct {
	stream
}

func newInputStream(s *Store, file models.FileInfo, position int64) *InputStream {
	return &InputStream{stream{
		file:     file,
		position: position,
		namenode: s.namenode,
		storage:  s.storage,
		blocks:   s.blocks.Get(file.FD),
	}}
}

// Read fills buf's remaining bytes, at most up to the end of the current
// block or the file. It returns io.EOF once the position reaches capacity.
func (i *InputStream) Read(ctx context.Context, buf *binary.Buffer) (int, error) {
	const op = "store.InputStream.Read"

	switch {
	case i.closed:
		return 0, fmt.Errorf("%s: %w", op, ErrStreamClosed)
	case buf == nil || buf.Remaining() < 0:
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidBuffer)
	}

	avail := i.file.Capacity - i.position
	if avail <= 0 {
		return 0, io.EOF
	}
	if buf.Remaining() == 0 {
		return 0, nil
	}

	return i.transfer(ctx, op, buf, avail, storage.Client.ReadData)
}

// ReadFull reads until buf is full or the file ends. Hitting the end of the
// file after some bytes were read is not an error.
func (i *InputStream) ReadFull(ctx context.Context, buf *binary.Buffer) (int, error) {
	total := 0
	for buf.Remaining() > 0 {
		n, err := i.Read(ctx, buf)
		total += n
		if errors.Is(err, io.EOF) {
			if total == 0 {
				return 0, io.EOF
			}
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (i *InputStream) Close() error {
	i.closed = true
	return nil
}
