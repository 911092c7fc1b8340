// Package narpcstore is the storage backend for nodes that speak narpc.
package narpcstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/narpc"
	"github.com/S1riyS/pocketfs/internal/storage"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
)

type Client struct {
	opts     narpc.Options
	rpc      *narpc.Client
	endpoint models.DatanodeInfo
}

func New(opts narpc.Options) *Client {
	return &Client{opts: opts}
}

func Factory(opts narpc.Options) storage.Factory {
	return func() storage.Client { return New(opts) }
}

func (c *Client) Connect(ctx context.Context, endpoint models.DatanodeInfo) error {
	const op = "narpcstore.Client.Connect"

	if c.rpc != nil {
		return nil
	}

	rpc, err := narpc.Dial(ctx, endpoint.Address(), c.opts)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.rpc = rpc
	c.endpoint = endpoint

	logging.GetLoggerFromContextWithOp(ctx, op).Debug("Connected to storage node", slog.String("endpoint", endpoint.String()))
	return nil
}

func (c *Client) Close() error {
	if c.rpc == nil {
		return nil
	}
	return c.rpc.Close()
}

func (c *Client) WriteData(key int32, address int64, buf *binary.Buffer) (storage.Future, error) {
	const op = "narpcstore.Client.WriteData"

	if c.rpc == nil {
		return nil, fmt.Errorf("%s: %w", op, narpc.ErrNotConnected)
	}

	req := &WriteRequest{Key: key, Address: address, Length: int32(buf.Remaining()), Data: buf}
	resp := &WriteResponse{}
	f, err := c.rpc.IssueRequest(req, resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &future{op: op, inner: f, result: func() (int32, int32) { return resp.Error, resp.Written }}, nil
}

func (c *Client) ReadData(key int32, address int64, buf *binary.Buffer) (storage.Future, error) {
	const op = "narpcstore.Client.ReadData"

	if c.rpc == nil {
		return nil, fmt.Errorf("%s: %w", op, narpc.ErrNotConnected)
	}

	req := &ReadRequest{Key: key, Address: address, Length: int32(buf.Remaining())}
	resp := &ReadResponse{Data: buf}
	f, err := c.rpc.IssueRequest(req, resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &future{op: op, inner: f, payload: true, result: func() (int32, int32) { return resp.Error, resp.Length }}, nil
}

type future struct {
	op    string
	inner *narpc.Future
	// payload marks reads, whose length must match the bytes that arrived.
	payload bool
	result  func() (status, n int32)
}

func (f *future) Get() (int, error) {
	if err := f.inner.Get(); err != nil {
		return 0, fmt.Errorf("%s: %w", f.op, err)
	}
	status, n := f.result()
	if status != StatusOK {
		return 0, fmt.Errorf("%s: %w: status %d", f.op, storage.ErrStorage, status)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: %w: negative length %d", f.op, storage.ErrStorage, n)
	}
	if got := f.inner.Received(); f.payload && int(n) != got {
		return 0, fmt.Errorf("%s: %w: node declared %d bytes, sent %d", f.op, storage.ErrStorage, n, got)
	}
	return int(n), nil
}
