package repository

import (
	"context"

	"github.com/S1riyS/pocketfs/pkg/database/postgresql"
)

type transactor struct {
	db postgresql.Client
}

func NewTransactor(db postgresql.Client) Transactor {
	return &transactor{db: db}
}

func (t *transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgresql.WithTransaction(ctx, t.db, fn)
}
