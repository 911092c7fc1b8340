package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/pkg/database/postgresql"
	"github.com/jackc/pgx/v5"
)

const inodeColumns = `fd, parent_fd, component, name, type, capacity, dir_offset, dir_cursor,
		token, storage_class, location_class, enumerable, modified_at`

type inodeRepository struct {
	db postgresql.Client
}

func NewInodeRepository(db postgresql.Client) InodeRepository {
	return &inodeRepository{db: db}
}

func scanInode(row pgx.Row) (*models.Inode, error) {
	var inode models.Inode
	err := row.Scan(
		&inode.FD,
		&inode.ParentFD,
		&inode.Component,
		&inode.Name,
		&inode.Type,
		&inode.Capacity,
		&inode.DirOffset,
		&inode.DirCursor,
		&inode.Token,
		&inode.StorageClass,
		&inode.LocationClass,
		&inode.Enumerable,
		&inode.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inode, nil
}

func (r *inodeRepository) Get(ctx context.Context, fd int64) (*models.Inode, error) {
	const op = "repository.inodeRepository.Get"

	query := `
		SELECT ` + inodeColumns + `
		FROM inodes
		WHERE fd = $1
	`

	db := postgresql.GetDBClient(ctx, r.db)
	inode, err := scanInode(db.QueryRow(ctx, query, fd))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return inode, nil
}

func (r *inodeRepository) Create(ctx context.Context, inode *models.Inode) error {
	const op = "repository.inodeRepository.Create"

	query := `
		INSERT INTO inodes (parent_fd, component, name, type, capacity, dir_offset, dir_cursor,
			token, storage_class, location_class, enumerable, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING fd
	`

	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query,
		inode.ParentFD,
		inode.Component,
		inode.Name,
		inode.Type,
		inode.Capacity,
		inode.DirOffset,
		inode.DirCursor,
		inode.Token,
		inode.StorageClass,
		inode.LocationClass,
		inode.Enumerable,
		inode.ModifiedAt,
	).Scan(&inode.FD)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *inodeRepository) Update(ctx context.Context, inode *models.Inode) error {
	const op = "repository.inodeRepository.Update"

	query := `
		UPDATE inodes
		SET capacity = $1, modified_at = $2
		WHERE fd = $3
	`

	db := postgresql.GetDBClient(ctx, r.db)
	_, err := db.Exec(ctx, query, inode.Capacity, inode.ModifiedAt, inode.FD)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *inodeRepository) ReserveDirSlot(ctx context.Context, fd int64) (int64, int64, error) {
	const op = "repository.inodeRepository.ReserveDirSlot"

	query := `
		UPDATE inodes
		SET dir_cursor = dir_cursor + $2,
			capacity = GREATEST(capacity, dir_cursor + $2),
			modified_at = NOW()
		WHERE fd = $1
		RETURNING dir_cursor - $2, capacity
	`

	var offset, capacity int64
	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query, fd, int64(models.DirRecordSize)).Scan(&offset, &capacity)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}

	return offset, capacity, nil
}

func (r *inodeRepository) Delete(ctx context.Context, fd int64) error {
	const op = "repository.inodeRepository.Delete"

	query := `
		DELETE FROM inodes
		WHERE fd = $1
	`

	db := postgresql.GetDBClient(ctx, r.db)
	_, err := db.Exec(ctx, query, fd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Count reports every inode except the root.
func (r *inodeRepository) Count(ctx context.Context) (int64, error) {
	const op = "repository.inodeRepository.Count"

	query := `
		SELECT COUNT(*)
		FROM inodes
		WHERE fd <> 0
	`

	var count int64
	db := postgresql.GetDBClient(ctx, r.db)
	if err := db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}
