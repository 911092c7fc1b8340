package datanode

import (
	"context"
	"fmt"
	"net"

	"github.com/S1riyS/pocketfs/internal/config"
)

// Server is a storage node serving one Volume.
type Server interface {
	Serve(ctx context.Context, l net.Listener) error
	Close() error
	Shutdown(ctx context.Context) error
}

// New builds the server matching cfg.Kind over a fresh volume.
func New(cfg config.DatanodeConfig) (Server, error) {
	vol := NewVolume(cfg.Capacity)

	switch cfg.Kind {
	case config.DatanodeKindNaRPC:
		return NewNaRPCServer(vol), nil
	case config.DatanodeKindReflex:
		return NewReflexServer(vol), nil
	default:
		return nil, fmt.Errorf("datanode.New: unknown kind %q", cfg.Kind)
	}
}
