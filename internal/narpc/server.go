package narpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

// Handler serves one request frame. req holds body and payload, positioned at
// the start of the body. The returned Message is sent back under the
// request's ticket. Returning an error drops the connection.
type Handler interface {
	ServeNaRPC(ctx context.Context, req *binary.Buffer) (Message, error)
}

type HandlerFunc func(ctx context.Context, req *binary.Buffer) (Message, error)

func (f HandlerFunc) ServeNaRPC(ctx context.Context, req *binary.Buffer) (Message, error) {
	return f(ctx, req)
}

// Server reads frames off each connection sequentially and answers them in
// order.
type Server struct {
	Handler      Handler
	MaxFrameSize int

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	closed    bool
	wg        sync.WaitGroup
}

var ErrServerClosed = errors.New("narpc: server closed")

func NewServer(h Handler) *Server {
	return &Server{Handler: h}
}

// Serve accepts connections on l until the server is closed. It always
// returns a non-nil error, ErrServerClosed after Close.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	const op = "narpc.Server.Serve"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	if !s.track(l) {
		l.Close()
		return ErrServerClosed
	}
	defer s.untrack(l)

	logger.Info("Listening", slog.String("addr", l.Addr().String()))

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			logger.Error("Accept failed", slogext.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}

		if !s.trackConn(conn) {
			conn.Close()
			return ErrServerClosed
		}

		go func() {
			defer s.wg.Done()
			defer s.untrackConn(conn)
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	const op = "narpc.Server.serveConn"

	logger := logging.GetLoggerFromContextWithOp(ctx, op).With(slog.String("remote", conn.RemoteAddr().String()))
	logger.Debug("Connection accepted")

	maxFrame := s.MaxFrameSize
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}

	header := binary.NewBuffer(HeaderSize)
	out := binary.NewBuffer(DefaultBufferSize)
	var in *binary.Buffer

	for {
		header.Clear()
		if _, err := io.ReadFull(conn, header.Bytes()); err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				logger.Error("Failed to read frame header", slogext.Err(err))
			}
			return
		}
		size := int(header.GetInt())
		ticket := header.GetLong()

		if size < 0 || size > maxFrame {
			logger.Error("Frame size out of range", slog.Int("size", size), slog.Int("max", maxFrame))
			return
		}
		if in == nil || in.Capacity() < size {
			in = binary.NewBuffer(size)
		}
		in.Clear()
		in.SetLimit(size)
		if _, err := io.ReadFull(conn, in.Bytes()); err != nil {
			logger.Error("Failed to read frame body", slogext.Err(err), slog.Int64("ticket", ticket))
			return
		}

		resp, err := s.Handler.ServeNaRPC(ctx, in)
		if err != nil {
			logger.Error("Handler failed, dropping connection", slogext.Err(err), slog.Int64("ticket", ticket))
			return
		}

		if err := writeFrame(conn, out, ticket, resp); err != nil {
			logger.Error("Failed to write response", slogext.Err(err), slog.Int64("ticket", ticket))
			return
		}
	}
}

func writeFrame(w io.Writer, buf *binary.Buffer, ticket int64, m Message) error {
	buf.Clear()
	putHeader(buf, int32(m.Size()+payloadLen(m)), ticket)
	if err := binary.Encode(buf, m); err != nil {
		return err
	}
	buf.Flip()

	bufs := net.Buffers{buf.Bytes()}
	if p := m.Payload(); p != nil && p.Remaining() > 0 {
		bufs = append(bufs, p.Bytes())
	}
	_, err := bufs.WriteTo(w)
	return err
}

// Close stops every listener and drops every connection without waiting.
func (s *Server) Close() error {
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

// Shutdown closes the server and waits for connection goroutines to exit or
// ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
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

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(l net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.listeners == nil {
		s.listeners = make(map[net.Listener]struct{})
	}
	s.listeners[l] = struct{}{}
	return true
}

func (s *Server) untrack(l net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, l)
}

// trackConn registers c and counts its goroutine in wg. Both happen under
// mu so a concurrent Shutdown either sees the connection or refuses it.
func (s *Server) trackConn(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackConn(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Close()
	delete(s.conns, c)
}
