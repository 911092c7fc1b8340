package datanode

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/S1riyS/pocketfs/internal/narpc"
	"github.com/S1riyS/pocketfs/internal/storage/narpcstore"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

// NaRPCServer serves a Volume over the narpc storage protocol.
type NaRPCServer struct {
	vol *Volume
	srv *narpc.Server
}

func NewNaRPCServer(vol *Volume) *NaRPCServer {
	s := &NaRPCServer{vol: vol}
	s.srv = narpc.NewServer(s)
	return s
}

func (s *NaRPCServer) Serve(ctx context.Context, l net.Listener) error {
	return s.srv.Serve(ctx, l)
}

func (s *NaRPCServer) Close() error {
	return s.srv.Close()
}

func (s *NaRPCServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *NaRPCServer) ServeNaRPC(ctx context.Context, buf *binary.Buffer) (narpc.Message, error) {
	const op = "datanode.NaRPCServer.ServeNaRPC"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	req, err := narpcstore.DecodeRequest(buf)
	if err != nil {
		logger.Error("Malformed storage request", slogext.Err(err))
		return nil, err
	}

	switch r := req.(type) {
	case *narpcstore.WriteRequest:
		resp := &narpcstore.WriteResponse{Type: narpcstore.RequestWrite}
		n, err := s.vol.WriteAt(r.Data.Bytes(), r.Address)
		if err != nil {
			logger.Error("Write failed", slogext.Err(err), slog.Int64("address", r.Address))
			resp.Error = narpcstore.StatusError
			return resp, nil
		}
		resp.Written = int32(n)
		logger.Debug("Write", slog.Int64("address", r.Address), slog.Int("length", n))
		return resp, nil

	case *narpcstore.ReadRequest:
		resp := &narpcstore.ReadResponse{Type: narpcstore.RequestRead}
		data := make([]byte, r.Length)
		n, err := s.vol.ReadAt(data, r.Address)
		if err != nil {
			logger.Error("Read failed", slogext.Err(err), slog.Int64("address", r.Address))
			resp.Error = narpcstore.StatusError
			return resp, nil
		}
		resp.Length = int32(n)
		resp.Data = binary.Wrap(data[:n])
		logger.Debug("Read", slog.Int64("address", r.Address), slog.Int("length", n))
		return resp, nil
	}

	return nil, fmt.Errorf("%s: unexpected request %T", op, req)
}
