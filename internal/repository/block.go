package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/pkg/database/postgresql"
	"github.com/jackc/pgx/v5"
)

type blockRepository struct {
	db postgresql.Client
}

func NewBlockRepository(db postgresql.Client) BlockRepository {
	return &blockRepository{db: db}
}

func (r *blockRepository) Get(ctx context.Context, fd, offset int64) (*models.Block, error) {
	const op = "repository.blockRepository.Get"

	query := `
		SELECT b.fd, b."offset", b.lba, b.addr, b.length, b.lkey,
			d.storage_type, d.storage_class, d.location_class, d.ip, d.port
		FROM blocks b
		JOIN datanodes d ON d.id = b.datanode_id
		WHERE b.fd = $1 AND b."offset" = $2
	`

	var (
		block models.Block
		ip    []byte
	)
	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query, fd, offset).Scan(
		&block.FD,
		&block.Offset,
		&block.Info.LBA,
		&block.Info.Addr,
		&block.Info.Length,
		&block.Info.LKey,
		&block.Info.Datanode.StorageType,
		&block.Info.Datanode.StorageClass,
		&block.Info.Datanode.LocationClass,
		&ip,
		&block.Info.Datanode.Port,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	copy(block.Info.Datanode.IP[:], ip)

	return &block, nil
}

func (r *blockRepository) Create(ctx context.Context, block *models.Block) error {
	const op = "repository.blockRepository.Create"

	query := `
		INSERT INTO blocks (fd, "offset", datanode_id, lba, addr, length, lkey)
		SELECT $1::bigint, $2::bigint, d.id, $4::bigint, $5::bigint, $6::integer, $7::integer
		FROM datanodes d
		WHERE d.endpoint = $3
	`

	db := postgresql.GetDBClient(ctx, r.db)
	tag, err := db.Exec(ctx, query,
		block.FD,
		block.Offset,
		block.Info.Datanode.Key(),
		block.Info.LBA,
		block.Info.Addr,
		block.Info.Length,
		block.Info.LKey,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: datanode %s is not registered", op, block.Info.Datanode.Address())
	}

	return nil
}

func (r *blockRepository) DeleteAll(ctx context.Context, fd int64) error {
	const op = "repository.blockRepository.DeleteAll"

	query := `
		DELETE FROM blocks
		WHERE fd = $1
	`

	db := postgresql.GetDBClient(ctx, r.db)
	if _, err := db.Exec(ctx, query, fd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
