// Package store is the client entry point: it resolves paths through the
// metadata service and moves file data directly to and from storage nodes.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/S1riyS/pocketfs/internal/blockcache"
	"github.com/S1riyS/pocketfs/internal/config"
	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/namenode"
	"github.com/S1riyS/pocketfs/internal/narpc"
	"github.com/S1riyS/pocketfs/internal/storage"
	"github.com/S1riyS/pocketfs/internal/storage/narpcstore"
	"github.com/S1riyS/pocketfs/internal/storage/reflex"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

var ErrUnknownNodeType = errors.New("store: unknown node type")

type Store struct {
	namenode *namenode.Client
	storage  *storage.Cache
	blocks   *blockcache.Registry
}

// Dial connects to the metadata service named in cfg. Storage nodes are
// connected lazily, the first time a block on them is touched.
func Dial(ctx context.Context, cfg config.ClientConfig) (*Store, error) {
	const op = "store.Dial"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	rpcOpts := narpc.Options{NoDelay: cfg.NoDelay, DialTimeout: cfg.DialTimeout}
	nn, err := namenode.Dial(ctx, cfg.NamenodeAddress, rpcOpts)
	if err != nil {
		logger.Error("Failed to connect to namenode", slogext.Err(err), slog.String("address", cfg.NamenodeAddress))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cache := storage.NewCache(storage.Factories{
		storage.KindNaRPC:  narpcstore.Factory(rpcOpts),
		storage.KindReflex: reflex.Factory(reflex.Options{NoDelay: cfg.NoDelay, DialTimeout: cfg.DialTimeout}),
	})

	logger.Info("Connected to namenode", slog.String("address", cfg.NamenodeAddress))
	return New(nn, cache), nil
}

func New(nn *namenode.Client, cache *storage.Cache) *Store {
	return &Store{
		namenode: nn,
		storage:  cache,
		blocks:   blockcache.NewRegistry(),
	}
}

// Close disconnects from the metadata service and every storage node.
func (s *Store) Close() error {
	return errors.Join(s.namenode.Close(), s.storage.Close())
}

// Blocks exposes the block location caches, mostly for diagnostics.
func (s *Store) Blocks() *blockcache.Registry {
	return s.blocks
}

// Create makes a new file or directory. For enumerable nodes the parent's
// directory stream gets an entry for it.
func (s *Store) Create(ctx context.Context, path string, nodeType models.NodeType, storageClass, locationClass int32, enumerable bool) (Node, error) {
	const op = "store.Store.Create"

	logger := logging.GetLoggerFromContextWithOp(ctx, op).With(slog.String("path", path))

	name, err := models.ParseFilename(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	f, err := s.namenode.Create(ctx, name, nodeType, storageClass, locationClass, enumerable)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := f.Get()
	if err != nil {
		logger.Debug("Create rejected", slogext.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	file := resp.File
	s.blocks.Drop(file.FD)
	s.blocks.Get(file.FD).Put(0, resp.FileBlock)

	if file.DirOffset >= 0 {
		s.blocks.Get(resp.Parent.FD).Put(file.DirOffset, resp.ParentBlock)
		if err := s.writeDirectoryRecord(ctx, resp.Parent, file.DirOffset, models.DirectoryRecord{Valid: 1, Name: name.Name}); err != nil {
			logger.Error("Failed to write directory entry", slogext.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	logger.Debug("Created", slog.String("file", file.String()))
	return s.dispatch(path, file)
}

// Lookup resolves an existing node.
func (s *Store) Lookup(ctx context.Context, path string) (Node, error) {
	const op = "store.Store.Lookup"

	name, err := models.ParseFilename(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	f, err := s.namenode.Lookup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := f.Get()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// The root may not have a block yet.
	if resp.FileBlock.Length > 0 {
		s.blocks.Get(resp.File.FD).Put(0, resp.FileBlock)
	}

	logging.GetLoggerFromContextWithOp(ctx, op).Debug("Resolved", slog.String("path", path), slog.String("file", resp.File.String()))
	return s.dispatch(path, resp.File)
}

// Remove deletes a node and tombstones its directory entry.
func (s *Store) Remove(ctx context.Context, path string, recursive bool) error {
	const op = "store.Store.Remove"

	logger := logging.GetLoggerFromContextWithOp(ctx, op).With(slog.String("path", path))

	name, err := models.ParseFilename(path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	f, err := s.namenode.Remove(ctx, name, recursive)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	resp, err := f.Get()
	if err != nil {
		logger.Debug("Remove rejected", slogext.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.blocks.Drop(resp.File.FD)

	if off := resp.File.DirOffset; off >= 0 {
		if err := s.writeDirectoryRecord(ctx, resp.Parent, off, models.DirectoryRecord{Valid: 0, Name: name.Name}); err != nil {
			logger.Error("Failed to tombstone directory entry", slogext.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	logger.Debug("Removed", slog.Bool("recursive", recursive))
	return nil
}

// Ioctl runs a maintenance operation and returns its count.
func (s *Store) Ioctl(ctx context.Context, iop namenode.IoctlOp, path string) (int64, error) {
	const op = "store.Store.Ioctl"

	name, err := models.ParseFilename(path)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	f, err := s.namenode.Ioctl(ctx, iop, name)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := f.Get()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return resp.Count, nil
}

func (s *Store) dispatch(path string, file models.FileInfo) (Node, error) {
	n := node{store: s, path: path, info: file}
	switch file.Type {
	case models.NodeTypeFile:
		return &File{n}, nil
	case models.NodeTypeDirectory:
		return &Directory{n}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownNodeType, int32(file.Type))
	}
}

// writeDirectoryRecord writes rec into parent's directory stream at offset.
// The stream is not closed: the metadata service owns directory capacity.
func (s *Store) writeDirectoryRecord(ctx context.Context, parent models.FileInfo, offset int64, rec models.DirectoryRecord) error {
	data, err := binary.Marshal(&rec, binary.BigEndian)
	if err != nil {
		return err
	}

	out := newOutputStream(s, parent, offset)
	_, err = out.WriteAll(ctx, binary.Wrap(data))
	return err
}
