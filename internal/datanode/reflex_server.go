package datanode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/S1riyS/pocketfs/internal/storage/reflex"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

// ReflexServer serves a Volume over the block protocol. Requests on one
// connection are answered in order, each with a header echo; reads append the
// requested sectors.
type ReflexServer struct {
	vol *Volume

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	closed    bool
	wg        sync.WaitGroup
}

var ErrServerClosed = errors.New("datanode: server closed")

func NewReflexServer(vol *Volume) *ReflexServer {
	return &ReflexServer{
		vol:       vol,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]struct{}),
	}
}

func (s *ReflexServer) Serve(ctx context.Context, l net.Listener) error {
	const op = "datanode.ReflexServer.Serve"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	logger.Info("Listening", slog.String("addr", l.Addr().String()))

	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			delete(s.listeners, l)
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return ErrServerClosed
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *ReflexServer) serveConn(ctx context.Context, conn net.Conn) {
	const op = "datanode.ReflexServer.serveConn"

	logger := logging.GetLoggerFromContextWithOp(ctx, op).With(slog.String("remote", conn.RemoteAddr().String()))

	buf := binary.NewBuffer(reflex.HeaderSize).SetOrder(binary.LittleEndian)
	var data []byte

	for {
		buf.Clear()
		if _, err := io.ReadFull(conn, buf.Bytes()); err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("Connection ended", slogext.Err(err))
			}
			return
		}
		var hdr reflex.Header
		if err := binary.Decode(buf, &hdr); err != nil {
			logger.Error("Malformed header", slogext.Err(err))
			return
		}
		if err := hdr.Validate(); err != nil {
			logger.Error("Invalid header", slogext.Err(err), slog.Int64("ticket", hdr.Ticket))
			return
		}

		n := int(hdr.Count) * reflex.SectorSize
		if cap(data) < n {
			data = make([]byte, n)
		}
		data = data[:n]
		off := hdr.LBA * reflex.SectorSize

		if hdr.Op == reflex.OpPut {
			if _, err := io.ReadFull(conn, data); err != nil {
				logger.Error("Short write payload", slogext.Err(err), slog.Int64("ticket", hdr.Ticket))
				return
			}
			if _, err := s.vol.WriteAt(data, off); err != nil {
				// The block protocol has no status field.
				logger.Error("Put failed, dropping connection", slogext.Err(err), slog.Int64("lba", hdr.LBA))
				return
			}
		} else {
			if _, err := s.vol.ReadAt(data, off); err != nil {
				logger.Error("Get failed, dropping connection", slogext.Err(err), slog.Int64("lba", hdr.LBA))
				return
			}
		}

		buf.Clear()
		if err := binary.Encode(buf, &hdr); err != nil {
			logger.Error("Failed to encode reply", slogext.Err(err))
			return
		}
		bufs := net.Buffers{buf.Flip().Bytes()}
		if hdr.Op == reflex.OpGet && n > 0 {
			bufs = append(bufs, data)
		}
		if _, err := bufs.WriteTo(conn); err != nil {
			logger.Error("Failed to write reply", slogext.Err(err), slog.Int64("ticket", hdr.Ticket))
			return
		}
	}
}

func (s *ReflexServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	var errs []error
	for l := range s.listeners {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for c := range s.conns {
		c.Close()
	}
	return errors.Join(errs...)
}

func (s *ReflexServer) Shutdown(ctx context.Context) error {
	err := s.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}
