package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/pkg/database/postgresql"
	"github.com/jackc/pgx/v5"
)

type datanodeRepository struct {
	db postgresql.Client
}

func NewDatanodeRepository(db postgresql.Client) DatanodeRepository {
	return &datanodeRepository{db: db}
}

func (r *datanodeRepository) Register(ctx context.Context, node *models.Datanode) error {
	const op = "repository.datanodeRepository.Register"

	query := `
		INSERT INTO datanodes (endpoint, storage_type, storage_class, location_class, ip, port, capacity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (endpoint) DO UPDATE
		SET storage_type = EXCLUDED.storage_type,
			storage_class = EXCLUDED.storage_class,
			location_class = EXCLUDED.location_class,
			capacity = EXCLUDED.capacity
		RETURNING id, next_addr
	`

	info := node.Info
	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query,
		info.Key(),
		info.StorageType,
		info.StorageClass,
		info.LocationClass,
		info.IP[:],
		info.Port,
		node.Capacity,
	).Scan(&node.ID, &node.NextAddr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *datanodeRepository) ListByClass(ctx context.Context, storageClass int32) ([]*models.Datanode, error) {
	const op = "repository.datanodeRepository.ListByClass"

	query := `
		SELECT id, storage_type, storage_class, location_class, ip, port, capacity, next_addr
		FROM datanodes
		WHERE storage_class = $1
		ORDER BY id
	`

	db := postgresql.GetDBClient(ctx, r.db)
	rows, err := db.Query(ctx, query, storageClass)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var nodes []*models.Datanode
	for rows.Next() {
		var (
			node models.Datanode
			ip   []byte
		)
		err := rows.Scan(
			&node.ID,
			&node.Info.StorageType,
			&node.Info.StorageClass,
			&node.Info.LocationClass,
			&ip,
			&node.Info.Port,
			&node.Capacity,
			&node.NextAddr,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		copy(node.Info.IP[:], ip)
		nodes = append(nodes, &node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return nodes, nil
}

func (r *datanodeRepository) Allocate(ctx context.Context, id int64, size int64) (int64, bool, error) {
	const op = "repository.datanodeRepository.Allocate"

	query := `
		UPDATE datanodes
		SET next_addr = next_addr + $2
		WHERE id = $1 AND next_addr + $2 <= capacity
		RETURNING next_addr - $2
	`

	var addr int64
	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query, id, size).Scan(&addr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	return addr, true, nil
}
