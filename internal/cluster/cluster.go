// Package cluster wires a metadata server and its storage nodes into one
// process.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/S1riyS/pocketfs/internal/config"
	"github.com/S1riyS/pocketfs/internal/datanode"
	"github.com/S1riyS/pocketfs/internal/handler"
	"github.com/S1riyS/pocketfs/internal/middleware"
	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/narpc"
	"github.com/S1riyS/pocketfs/internal/repository"
	"github.com/S1riyS/pocketfs/internal/repository/memory"
	"github.com/S1riyS/pocketfs/internal/service"
	"github.com/S1riyS/pocketfs/pkg/database/postgresql"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

type Cluster struct {
	namenode     *narpc.Server
	namenodeAddr string
	datanodes    []datanode.Server
	endpoints    []models.DatanodeInfo
	pool         *pgxpool.Pool
	done         chan error
}

// Start listens on every configured address and serves in the background.
// Addresses with port 0 get an ephemeral port; Addr and Datanodes report
// what was bound.
func Start(ctx context.Context, cfg *config.Config) (_ *Cluster, err error) {
	const op = "cluster.Start"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	c := &Cluster{done: make(chan error, len(cfg.Datanodes)+1)}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	svc, err := c.newService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for i, dn := range cfg.Datanodes {
		srv, err := datanode.New(dn)
		if err != nil {
			return nil, fmt.Errorf("%s: datanodes[%d]: %w", op, i, err)
		}
		l, err := net.Listen("tcp", dn.Address)
		if err != nil {
			return nil, fmt.Errorf("%s: datanodes[%d]: %w", op, i, err)
		}
		c.datanodes = append(c.datanodes, srv)
		go func() { c.done <- srv.Serve(ctx, l) }()

		info, err := models.NewDatanodeInfo(l.Addr().String(), dn.StorageClass, dn.LocationClass)
		if err != nil {
			return nil, fmt.Errorf("%s: datanodes[%d]: %w", op, i, err)
		}
		if err := svc.RegisterDatanode(ctx, &models.Datanode{Info: info, Capacity: dn.Capacity}); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c.endpoints = append(c.endpoints, info)

		logger.Info("Datanode started", slog.String("kind", dn.Kind), slog.String("datanode", info.String()))
	}

	l, err := net.Listen("tcp", cfg.Namenode.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("%s: namenode: %w", op, err)
	}
	c.namenodeAddr = l.Addr().String()
	c.namenode = narpc.NewServer(middleware.RequestID(handler.NewHandler(svc)))
	go func() { c.done <- c.namenode.Serve(ctx, l) }()

	logger.Info("Namenode started", slog.String("addr", c.namenodeAddr), slog.String("repository", cfg.Namenode.Repository))
	return c, nil
}

func (c *Cluster) newService(ctx context.Context, cfg *config.Config) (service.NamespaceService, error) {
	switch cfg.Namenode.Repository {
	case config.RepositoryMemory, "":
		db := memory.New()
		return service.NewNamespaceService(db, db.Inodes(), db.Blocks(), db.Datanodes()), nil

	case config.RepositoryPostgres:
		pool, err := postgresql.NewClient(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		c.pool = pool
		if err := repository.Migrate(ctx, pool); err != nil {
			return nil, err
		}

		inodes := repository.NewInodeRepository(pool)
		n, err := inodes.Count(ctx)
		if err != nil {
			return nil, err
		}
		logging.GetLoggerFromContext(ctx).Info("Namespace loaded", slog.Int64("inodes", n))

		return service.NewNamespaceService(
			repository.NewTransactor(pool),
			inodes,
			repository.NewBlockRepository(pool),
			repository.NewDatanodeRepository(pool),
		), nil

	default:
		return nil, fmt.Errorf("unknown repository %q", cfg.Namenode.Repository)
	}
}

// Addr is the metadata server's bound address.
func (c *Cluster) Addr() string {
	return c.namenodeAddr
}

func (c *Cluster) Datanodes() []models.DatanodeInfo {
	return c.endpoints
}

// Done reports servers that stopped on their own.
func (c *Cluster) Done() <-chan error {
	return c.done
}

// Shutdown stops accepting and waits for in-flight connections to end.
func (c *Cluster) Shutdown(ctx context.Context) error {
	var errs []error
	if c.namenode != nil {
		errs = append(errs, c.namenode.Shutdown(ctx))
	}
	for _, srv := range c.datanodes {
		errs = append(errs, srv.Shutdown(ctx))
	}
	if c.pool != nil {
		c.pool.Close()
	}
	return errors.Join(errs...)
}

func (c *Cluster) Close() error {
	var errs []error
	if c.namenode != nil {
		errs = append(errs, c.namenode.Close())
	}
	for _, srv := range c.datanodes {
		errs = append(errs, srv.Close())
	}
	if c.pool != nil {
		c.pool.Close()
	}
	return errors.Join(errs...)
}

// LogServeError logs a server that stopped for a reason other than shutdown.
func LogServeError(ctx context.Context, err error) {
	if err == nil || errors.Is(err, narpc.ErrServerClosed) || errors.Is(err, datanode.ErrServerClosed) {
		return
	}
	logging.GetLoggerFromContextWithOp(ctx, "cluster.LogServeError").Error("Server stopped", slogext.Err(err))
}
