// Package handler serves the metadata protocol on top of a NamespaceService.
package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/S1riyS/pocketfs/internal/namenode"
	"github.com/S1riyS/pocketfs/internal/narpc"
	"github.com/S1riyS/pocketfs/internal/pkg/kerrors"
	"github.com/S1riyS/pocketfs/internal/service"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

type route func(ctx context.Context, req namenode.Request) (namenode.Response, error)

type Handler struct {
	service service.NamespaceService
	routes  map[namenode.Command]route
}

func NewHandler(service service.NamespaceService) *Handler {
	h := &Handler{service: service}
	h.routes = h.registerRoutes()
	return h
}

// ServeNaRPC decodes one request and always answers with the response type of
// its command. Failures travel as a code in the response header.
func (h *Handler) ServeNaRPC(ctx context.Context, buf *binary.Buffer) (narpc.Message, error) {
	const op = "handler.Handler.ServeNaRPC"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	cmd := peekCommand(buf)

	req, err := namenode.DecodeRequest(buf)
	if err != nil {
		logger.Error("Malformed request", slogext.Err(err), slog.String("command", cmd.String()))
		return errorResponse(cmd, decodeErrorCode(err)), nil
	}

	handle, ok := h.routes[cmd]
	if !ok {
		return errorResponse(cmd, kerrors.InvalidCommand), nil
	}

	resp, err := handle(ctx, req)
	if err != nil {
		code := service.CodeOf(err)
		if code == kerrors.Unknown {
			logger.Error("Request failed", slogext.Err(err), slog.String("command", cmd.String()))
		}
		return errorResponse(cmd, code), nil
	}

	resp.Header().Type = cmd
	return resp, nil
}

func (h *Handler) handleCreate(ctx context.Context, req namenode.Request) (namenode.Response, error) {
	r := req.(*namenode.CreateRequest)

	res, err := h.service.Create(ctx, r.Filename, r.Type, r.StorageClass, r.LocationClass, r.Enumerable)
	if err != nil {
		return nil, err
	}

	return &namenode.CreateResponse{
		File:        res.File,
		Parent:      res.Parent,
		FileBlock:   res.FileBlock,
		ParentBlock: res.ParentBlock,
	}, nil
}

func (h *Handler) handleLookup(ctx context.Context, req namenode.Request) (namenode.Response, error) {
	r := req.(*namenode.LookupRequest)

	res, err := h.service.Lookup(ctx, r.Filename)
	if err != nil {
		return nil, err
	}

	return &namenode.LookupResponse{File: res.File, FileBlock: res.Block}, nil
}

func (h *Handler) handleSetFile(ctx context.Context, req namenode.Request) (namenode.Response, error) {
	r := req.(*namenode.SetFileRequest)

	if err := h.service.SetFile(ctx, r.File, r.Close); err != nil {
		return nil, err
	}

	return &namenode.VoidResponse{}, nil
}

func (h *Handler) handleRemove(ctx context.Context, req namenode.Request) (namenode.Response, error) {
	r := req.(*namenode.RemoveRequest)

	res, err := h.service.Remove(ctx, r.Filename, r.Recursive)
	if err != nil {
		return nil, err
	}

	return &namenode.RemoveResponse{File: res.File, Parent: res.Parent}, nil
}

func (h *Handler) handleGetBlock(ctx context.Context, req namenode.Request) (namenode.Response, error) {
	r := req.(*namenode.GetBlockRequest)

	block, err := h.service.GetBlock(ctx, r.FD, r.Token, r.Position, r.Capacity)
	if err != nil {
		return nil, err
	}

	return &namenode.GetBlockResponse{Block: block}, nil
}

func (h *Handler) handleIoctl(ctx context.Context, req namenode.Request) (namenode.Response, error) {
	r := req.(*namenode.IoctlRequest)

	count, err := h.service.Ioctl(ctx, r.Op, r.Filename)
	if err != nil {
		return nil, err
	}

	return &namenode.IoctlResponse{Op: r.Op, Count: count}, nil
}

func peekCommand(buf *binary.Buffer) namenode.Command {
	if buf.Remaining() < 2 {
		return 0
	}
	start := buf.Position()
	cmd := namenode.Command(buf.GetShort())
	buf.SetPosition(start)
	return cmd
}

func decodeErrorCode(err error) int16 {
	var nerr *namenode.Error
	if errors.As(err, &nerr) {
		return nerr.Code
	}
	return kerrors.ProtocolMismatch
}

// errorResponse builds the full-size response of cmd carrying code, so the
// client can still frame it.
func errorResponse(cmd namenode.Command, code int16) namenode.Response {
	resp := namenode.ResponseFor(cmd)
	if resp == nil {
		resp = &namenode.VoidResponse{}
	}
	resp.Header().Type = cmd
	resp.Header().Error = code
	if gb, ok := resp.(*namenode.GetBlockResponse); ok {
		gb.Status = code
	}
	return resp
}
