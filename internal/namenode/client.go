package namenode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/narpc"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

// Client issues metadata requests over one narpc connection.
type Client struct {
	rpc *narpc.Client
}

func Dial(ctx context.Context, addr string, opts narpc.Options) (*Client, error) {
	const op = "namenode.Dial"

	rpc, err := narpc.Dial(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Client{rpc: rpc}, nil
}

func NewClient(rpc *narpc.Client) *Client {
	return &Client{rpc: rpc}
}

func (c *Client) Close() error {
	return c.rpc.Close()
}

// Future is a pending metadata call. Get returns the transport error if the
// round trip failed, or *Error if the service rejected the request.
type Future[R Response] struct {
	op    string
	inner *narpc.Future
	resp  R
}

func (f *Future[R]) Get() (R, error) {
	var zero R
	if err := f.inner.Get(); err != nil {
		return zero, fmt.Errorf("%s: %w", f.op, err)
	}
	if err := f.resp.Err(); err != nil {
		return zero, fmt.Errorf("%s: %w", f.op, err)
	}
	return f.resp, nil
}

func issue[R Response](ctx context.Context, c *Client, op string, req Request, resp R) (*Future[R], error) {
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	inner, err := c.rpc.IssueRequest(req, resp)
	if err != nil {
		logger.Error("Failed to issue request", slogext.Err(err), slog.String("command", req.Command().String()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Request issued", slog.String("command", req.Command().String()), slog.Int64("ticket", inner.Ticket()))
	return &Future[R]{op: op, inner: inner, resp: resp}, nil
}

func (c *Client) Create(ctx context.Context, name models.Filename, nodeType models.NodeType, storageClass, locationClass int32, enumerable bool) (*Future[*CreateResponse], error) {
	req := &CreateRequest{
		Filename:      name,
		Type:          nodeType,
		StorageClass:  storageClass,
		LocationClass: locationClass,
		Enumerable:    enumerable,
	}
	return issue(ctx, c, "namenode.Client.Create", req, &CreateResponse{})
}

func (c *Client) Lookup(ctx context.Context, name models.Filename) (*Future[*LookupResponse], error) {
	return issue(ctx, c, "namenode.Client.Lookup", &LookupRequest{Filename: name}, &LookupResponse{})
}

func (c *Client) SetFile(ctx context.Context, file models.FileInfo, closeFile bool) (*Future[*VoidResponse], error) {
	return issue(ctx, c, "namenode.Client.SetFile", &SetFileRequest{File: file, Close: closeFile}, &VoidResponse{})
}

func (c *Client) Remove(ctx context.Context, name models.Filename, recursive bool) (*Future[*RemoveResponse], error) {
	return issue(ctx, c, "namenode.Client.Remove", &RemoveRequest{Filename: name, Recursive: recursive}, &RemoveResponse{})
}

func (c *Client) GetBlock(ctx context.Context, fd, token, position, capacity int64) (*Future[*GetBlockResponse], error) {
	req := &GetBlockRequest{FD: fd, Token: token, Position: position, Capacity: capacity}
	return issue(ctx, c, "namenode.Client.GetBlock", req, &GetBlockResponse{})
}

func (c *Client) Ioctl(ctx context.Context, op IoctlOp, name models.Filename) (*Future[*IoctlResponse], error) {
	return issue(ctx, c, "namenode.Client.Ioctl", &IoctlRequest{Op: op, Filename: name}, &IoctlResponse{})
}
