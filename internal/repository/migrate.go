package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/S1riyS/pocketfs/pkg/database/postgresql"
	"github.com/S1riyS/pocketfs/pkg/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the schema. Every migration is idempotent, so it runs on
// each start; the root directory is created here.
func Migrate(ctx context.Context, db postgresql.Client) error {
	const op = "repository.Migrate"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	sort.Strings(names)

	return postgresql.WithTransaction(ctx, db, func(ctx context.Context) error {
		for _, name := range names {
			query, err := migrations.ReadFile(name)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			if _, err := postgresql.GetDBClient(ctx, db).Exec(ctx, string(query)); err != nil {
				return fmt.Errorf("%s: %s: %w", op, name, err)
			}
			logger.Debug("Migration applied", slog.String("name", name))
		}
		return nil
	})
}
