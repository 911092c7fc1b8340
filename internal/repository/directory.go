package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/pkg/database/postgresql"
	"github.com/jackc/pgx/v5"
)

// Directory queries. Children are keyed by (parent fd, component hash); the
// root is its own parent and is excluded.

func (r *inodeRepository) GetChild(ctx context.Context, parentFD int64, component int32) (*models.Inode, error) {
	const op = "repository.inodeRepository.GetChild"

	query := `
		SELECT ` + inodeColumns + `
		FROM inodes
		WHERE parent_fd = $1 AND component = $2 AND fd <> 0
	`

	db := postgresql.GetDBClient(ctx, r.db)
	inode, err := scanInode(db.QueryRow(ctx, query, parentFD, component))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return inode, nil
}

func (r *inodeRepository) Children(ctx context.Context, parentFD int64) ([]*models.Inode, error) {
	const op = "repository.inodeRepository.Children"

	query := `
		SELECT ` + inodeColumns + `
		FROM inodes
		WHERE parent_fd = $1 AND fd <> 0
		ORDER BY fd
	`

	db := postgresql.GetDBClient(ctx, r.db)
	rows, err := db.Query(ctx, query, parentFD)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var children []*models.Inode
	for rows.Next() {
		inode, err := scanInode(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		children = append(children, inode)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return children, nil
}

func (r *inodeRepository) CountChildren(ctx context.Context, parentFD int64) (int64, error) {
	const op = "repository.inodeRepository.CountChildren"

	query := `
		SELECT COUNT(*)
		FROM inodes
		WHERE parent_fd = $1 AND fd <> 0
	`

	var count int64
	db := postgresql.GetDBClient(ctx, r.db)
	if err := db.QueryRow(ctx, query, parentFD).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}
