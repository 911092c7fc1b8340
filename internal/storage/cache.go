package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

const closeConcurrency = 8

var ErrCacheClosed = errors.New("storage: cache closed")

type cacheKey struct {
	endpoint int64
	kind     Kind
}

// Cache keeps one connected client per storage endpoint.
type Cache struct {
	factories Factories

	mu      sync.Mutex
	clients map[cacheKey]Client
	closed  bool
}

func NewCache(factories Factories) *Cache {
	return &Cache{
		factories: factories,
		clients:   make(map[cacheKey]Client),
	}
}

// Get returns the cached client for endpoint, connecting a new one on first
// use. A failed connect is not cached.
func (c *Cache) Get(ctx context.Context, endpoint models.DatanodeInfo) (Client, error) {
	const op = "storage.Cache.Get"

	kind := KindOf(endpoint)
	key := cacheKey{endpoint: endpoint.Key(), kind: kind}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("%s: %w", op, ErrCacheClosed)
	}
	if client, ok := c.clients[key]; ok {
		return client, nil
	}

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	factory, ok := c.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w: class %d", op, ErrUnknownKind, endpoint.StorageClass)
	}

	client := factory()
	if err := client.Connect(ctx, endpoint); err != nil {
		logger.Error("Failed to connect to storage node", slogext.Err(err), slog.String("endpoint", endpoint.String()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.clients[key] = client
	logger.Debug("Storage client connected", slog.String("endpoint", endpoint.String()), slog.String("kind", kind.String()))

	return client, nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// Close disconnects every cached client and reports all failures.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	clients := make([]Client, 0, len(c.clients))
	for _, client := range c.clients {
		clients = append(clients, client)
	}
	clear(c.clients)
	c.mu.Unlock()

	errs := make([]error, len(clients))
	var g errgroup.Group
	g.SetLimit(closeConcurrency)
	for i, client := range clients {
		i, client := i, client
		g.Go(func() error {
			errs[i] = client.Close()
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
