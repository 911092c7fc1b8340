package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/namenode"
	"github.com/S1riyS/pocketfs/internal/pkg/kerrors"
	"github.com/S1riyS/pocketfs/internal/repository"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

const sectorSize = 512

type CreateResult struct {
	File        models.FileInfo
	Parent      models.FileInfo
	FileBlock   models.BlockInfo
	ParentBlock models.BlockInfo
}

type LookupResult struct {
	File  models.FileInfo
	Block models.BlockInfo
}

type RemoveResult struct {
	File   models.FileInfo
	Parent models.FileInfo
}

type NamespaceService interface {
	RegisterDatanode(ctx context.Context, node *models.Datanode) error
	Create(ctx context.Context, name models.Filename, nodeType models.NodeType, storageClass, locationClass int32, enumerable bool) (*CreateResult, error)
	Lookup(ctx context.Context, name models.Filename) (*LookupResult, error)
	SetFile(ctx context.Context, file models.FileInfo, closeFile bool) error
	Remove(ctx context.Context, name models.Filename, recursive bool) (*RemoveResult, error)
	GetBlock(ctx context.Context, fd, token, position, capacity int64) (models.BlockInfo, error)
	Ioctl(ctx context.Context, op namenode.IoctlOp, name models.Filename) (int64, error)
}

type namespaceService struct {
	tx        repository.Transactor
	inodes    repository.InodeRepository
	blocks    repository.BlockRepository
	datanodes repository.DatanodeRepository

	rrMu sync.Mutex
	rr   map[int32]int
}

func NewNamespaceService(
	tx repository.Transactor,
	inodes repository.InodeRepository,
	blocks repository.BlockRepository,
	datanodes repository.DatanodeRepository,
) NamespaceService {
	return &namespaceService{
		tx:        tx,
		inodes:    inodes,
		blocks:    blocks,
		datanodes: datanodes,
		rr:        make(map[int32]int),
	}
}

func (s *namespaceService) RegisterDatanode(ctx context.Context, node *models.Datanode) error {
	const op = "service.namespaceService.RegisterDatanode"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	if node.Capacity < models.BlockSize {
		return fmt.Errorf("%s: datanode %s capacity %d is below one block", op, node.Info.Address(), node.Capacity)
	}

	if err := s.datanodes.Register(ctx, node); err != nil {
		logger.Error("Failed to register datanode", slogext.Err(err), slog.String("datanode", node.Info.String()))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("Datanode registered",
		slog.String("datanode", node.Info.String()),
		slog.Int64("capacity", node.Capacity),
		slog.Int64("next_addr", node.NextAddr),
	)
	return nil
}

func (s *namespaceService) Create(ctx context.Context, name models.Filename, nodeType models.NodeType, storageClass, locationClass int32, enumerable bool) (*CreateResult, error) {
	const op = "service.namespaceService.Create"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Create",
		slog.Int("depth", int(name.Length)),
		slog.String("type", nodeType.String()),
		slog.Int("storage_class", int(storageClass)),
		slog.Bool("enumerable", enumerable),
	)

	if !nodeType.Valid() {
		return nil, reject(kerrors.InvalidCommand)
	}
	if name.IsRoot() {
		return nil, reject(kerrors.FileExists)
	}

	var res CreateResult
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		parent, err := s.walk(ctx, name.Parent())
		if err != nil {
			return err
		}
		if parent == nil {
			return reject(kerrors.ParentMissing)
		}
		if !parent.IsDir() {
			return reject(kerrors.NotADirectory)
		}

		existing, err := s.inodes.GetChild(ctx, parent.FD, name.Component())
		if err != nil {
			return err
		}
		if existing != nil {
			return reject(kerrors.FileExists)
		}

		fileBlock, err := s.allocate(ctx, storageClass)
		if err != nil {
			return err
		}

		inode := &models.Inode{
			ParentFD:      parent.FD,
			Component:     name.Component(),
			Name:          name.Name,
			Type:          nodeType,
			DirOffset:     -1,
			Token:         newToken(),
			StorageClass:  storageClass,
			LocationClass: locationClass,
			Enumerable:    enumerable,
			ModifiedAt:    time.Now(),
		}

		if enumerable {
			offset, capacity, err := s.inodes.ReserveDirSlot(ctx, parent.FD)
			if err != nil {
				return err
			}
			inode.DirOffset = offset
			parent.Capacity = capacity
			parent.DirCursor = offset + models.DirRecordSize
		}

		if err := s.inodes.Create(ctx, inode); err != nil {
			return err
		}
		logger.Debug("Created inode", slog.Int64("fd", inode.FD), slog.Int64("dir_offset", inode.DirOffset))

		if err := s.blocks.Create(ctx, &models.Block{FD: inode.FD, Offset: 0, Info: fileBlock}); err != nil {
			return err
		}

		res.File = inode.FileInfo()
		res.FileBlock = fileBlock
		res.Parent = parent.FileInfo()

		if enumerable {
			res.ParentBlock, err = s.blockAt(ctx, parent, inode.DirOffset)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if isConflict(err) {
			logger.Debug("File already exists (unique violation)")
			return nil, reject(kerrors.FileExists)
		}
		if isRejection(err) {
			logger.Debug("Create rejected", slogext.Err(err))
			return nil, err
		}
		logger.Error("Failed to create", slogext.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Created successfully", slog.String("file", res.File.String()), slog.String("block", res.FileBlock.String()))
	return &res, nil
}

func (s *namespaceService) Lookup(ctx context.Context, name models.Filename) (*LookupResult, error) {
	const op = "service.namespaceService.Lookup"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	inode, err := s.walk(ctx, name)
	if err != nil {
		return nil, s.fail(logger, op, err)
	}
	if inode == nil {
		logger.Debug("Not found", slog.Int("depth", int(name.Length)))
		return nil, reject(kerrors.FileNotFound)
	}

	res := &LookupResult{File: inode.FileInfo()}

	block, err := s.blocks.Get(ctx, inode.FD, 0)
	if err != nil {
		return nil, s.fail(logger, op, err)
	}
	if block != nil {
		res.Block = block.Info
	}

	logger.Debug("Lookup successful", slog.String("file", res.File.String()))
	return res, nil
}

func (s *namespaceService) SetFile(ctx context.Context, file models.FileInfo, closeFile bool) error {
	const op = "service.namespaceService.SetFile"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("SetFile", slog.String("file", file.String()), slog.Bool("close", closeFile))

	if file.Capacity < 0 {
		return reject(kerrors.PositionNegative)
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		inode, err := s.inodes.Get(ctx, file.FD)
		if err != nil {
			return err
		}
		if inode == nil {
			return reject(kerrors.FileNotFound)
		}
		if inode.Token != file.Token {
			return reject(kerrors.TokenMismatch)
		}

		// Directory capacity tracks entry slots and only the service moves it.
		if !inode.IsDir() {
			inode.Capacity = file.Capacity
		}
		inode.ModifiedAt = time.Now()
		return s.inodes.Update(ctx, inode)
	})
	if err != nil {
		return s.fail(logger, op, err)
	}

	return nil
}

func (s *namespaceService) Remove(ctx context.Context, name models.Filename, recursive bool) (*RemoveResult, error) {
	const op = "service.namespaceService.Remove"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Remove", slog.Int("depth", int(name.Length)), slog.Bool("recursive", recursive))

	if name.IsRoot() {
		return nil, reject(kerrors.InvalidCommand)
	}

	var res RemoveResult
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		inode, err := s.walk(ctx, name)
		if err != nil {
			return err
		}
		if inode == nil {
			return reject(kerrors.FileNotFound)
		}

		if inode.IsDir() && !recursive {
			n, err := s.inodes.CountChildren(ctx, inode.FD)
			if err != nil {
				return err
			}
			if n > 0 {
				return reject(kerrors.DirectoryNotEmpty)
			}
		}

		parent, err := s.inodes.Get(ctx, inode.ParentFD)
		if err != nil {
			return err
		}
		if parent == nil {
			return fmt.Errorf("inode %d has no parent %d", inode.FD, inode.ParentFD)
		}

		removed, err := s.removeTree(ctx, inode)
		if err != nil {
			return err
		}
		logger.Debug("Removed inodes", slog.Int("count", removed))

		res.File = inode.FileInfo()
		res.Parent = parent.FileInfo()
		return nil
	})
	if err != nil {
		return nil, s.fail(logger, op, err)
	}

	return &res, nil
}

// removeTree deletes inode, its blocks and, for directories, everything
// below it. It returns the number of inodes removed.
func (s *namespaceService) removeTree(ctx context.Context, inode *models.Inode) (int, error) {
	removed := 0
	if inode.IsDir() {
		children, err := s.inodes.Children(ctx, inode.FD)
		if err != nil {
			return 0, err
		}
		for _, child := range children {
			n, err := s.removeTree(ctx, child)
			if err != nil {
				return 0, err
			}
			removed += n
		}
	}

	if err := s.blocks.DeleteAll(ctx, inode.FD); err != nil {
		return 0, err
	}
	if err := s.inodes.Delete(ctx, inode.FD); err != nil {
		return 0, err
	}
	return removed + 1, nil
}

func (s *namespaceService) GetBlock(ctx context.Context, fd, token, position, capacity int64) (models.BlockInfo, error) {
	const op = "service.namespaceService.GetBlock"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("GetBlock", slog.Int64("fd", fd), slog.Int64("position", position), slog.Int64("capacity", capacity))

	if position < 0 {
		return models.BlockInfo{}, reject(kerrors.PositionNegative)
	}

	inode, err := s.inodes.Get(ctx, fd)
	if err != nil {
		return models.BlockInfo{}, s.fail(logger, op, err)
	}
	if inode == nil {
		return models.BlockInfo{}, reject(kerrors.FileNotFound)
	}
	if inode.Token != token {
		return models.BlockInfo{}, reject(kerrors.TokenMismatch)
	}

	block, err := s.blockAt(ctx, inode, position)
	if err != nil {
		return models.BlockInfo{}, s.fail(logger, op, err)
	}

	logger.Debug("Block resolved", slog.Int64("fd", fd), slog.String("block", block.String()))
	return block, nil
}

func (s *namespaceService) Ioctl(ctx context.Context, op namenode.IoctlOp, name models.Filename) (int64, error) {
	const fn = "service.namespaceService.Ioctl"

	logger := logging.GetLoggerFromContextWithOp(ctx, fn)
	logger.Debug("Ioctl", slog.Int("op", int(op)))

	switch op {
	case namenode.IoctlNop:
		return 0, nil

	case namenode.IoctlCountFiles:
		inode, err := s.walk(ctx, name)
		if err != nil {
			return 0, s.fail(logger, fn, err)
		}
		if inode == nil {
			return 0, reject(kerrors.FileNotFound)
		}
		if !inode.IsDir() {
			return 0, reject(kerrors.NotADirectory)
		}
		n, err := s.inodes.CountChildren(ctx, inode.FD)
		if err != nil {
			return 0, s.fail(logger, fn, err)
		}
		return n, nil

	default:
		return 0, reject(kerrors.InvalidIoctl)
	}
}

// walk resolves name from the root. It returns (nil, nil) if a component is
// missing and NotADirectory if a file is traversed.
func (s *namespaceService) walk(ctx context.Context, name models.Filename) (*models.Inode, error) {
	cur, err := s.inodes.Get(ctx, models.RootFD)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("root directory missing")
	}

	for _, component := range name.Components[:name.Length] {
		if !cur.IsDir() {
			return nil, reject(kerrors.NotADirectory)
		}
		cur, err = s.inodes.GetChild(ctx, cur.FD, component)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, nil
		}
	}
	return cur, nil
}

// blockAt returns the block of inode covering position, allocating it on
// first touch.
func (s *namespaceService) blockAt(ctx context.Context, inode *models.Inode, position int64) (models.BlockInfo, error) {
	offset := position - position%models.BlockSize

	block, err := s.blocks.Get(ctx, inode.FD, offset)
	if err != nil {
		return models.BlockInfo{}, err
	}
	if block != nil {
		return block.Info, nil
	}

	info, err := s.allocate(ctx, inode.StorageClass)
	if err != nil {
		return models.BlockInfo{}, err
	}

	err = s.blocks.Create(ctx, &models.Block{FD: inode.FD, Offset: offset, Info: info})
	if isConflict(err) {
		// Lost a race with a concurrent GetBlock; the space stays allocated.
		block, err = s.blocks.Get(ctx, inode.FD, offset)
		if err != nil {
			return models.BlockInfo{}, err
		}
		if block == nil {
			return models.BlockInfo{}, reject(kerrors.AddBlockFailed)
		}
		return block.Info, nil
	}
	if err != nil {
		return models.BlockInfo{}, err
	}
	return info, nil
}

// allocate carves one block from the datanodes of storageClass, starting
// from the next node in round-robin order and skipping full ones.
func (s *namespaceService) allocate(ctx context.Context, storageClass int32) (models.BlockInfo, error) {
	nodes, err := s.datanodes.ListByClass(ctx, storageClass)
	if err != nil {
		return models.BlockInfo{}, err
	}
	if len(nodes) == 0 {
		return models.BlockInfo{}, reject(kerrors.NoFreeBlocks)
	}

	s.rrMu.Lock()
	start := s.rr[storageClass]
	s.rr[storageClass] = start + 1
	s.rrMu.Unlock()

	for i := range nodes {
		node := nodes[(start+i)%len(nodes)]
		addr, ok, err := s.datanodes.Allocate(ctx, node.ID, models.BlockSize)
		if err != nil {
			return models.BlockInfo{}, err
		}
		if ok {
			return models.BlockInfo{
				Datanode: node.Info,
				LBA:      addr / sectorSize,
				Addr:     addr,
				Length:   models.BlockSize,
			}, nil
		}
	}
	return models.BlockInfo{}, reject(kerrors.NoFreeBlocks)
}

// fail passes rejections through and wraps everything else.
func (s *namespaceService) fail(logger *slog.Logger, op string, err error) error {
	if isRejection(err) {
		logger.Debug("Rejected", slogext.Err(err))
		return err
	}
	logger.Error("Operation failed", slogext.Err(err))
	return fmt.Errorf("%s: %w", op, err)
}

// newToken returns a random positive capability token for a new inode.
func newToken() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]) >> 1)
}
