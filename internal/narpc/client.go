package narpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

type Options struct {
	NoDelay     bool
	DialTimeout time.Duration
	// BufferSize bounds header plus body of a single frame in either direction.
	BufferSize int
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	return o
}

// Client multiplexes up to MaxInflight outstanding requests over one
// connection. There is no background reader: whoever waits on a Future
// reads frames off the socket until its own response shows up.
type Client struct {
	opts Options
	addr string
	log  *slog.Logger

	sendMu  sync.Mutex
	sendBuf *binary.Buffer
	seq     uint64

	recvMu  sync.Mutex
	recvBuf *binary.Buffer

	mu     sync.Mutex
	conn   net.Conn
	slots  [MaxInflight + 1]*Future
	err    error
	closed bool
}

func NewClient(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		opts:    opts,
		log:     logging.Discard(),
		sendBuf: binary.NewBuffer(opts.BufferSize),
		recvBuf: binary.NewBuffer(opts.BufferSize),
	}
}

func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	c := NewClient(opts)
	if err := c.Connect(ctx, addr); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect is a no-op on a connected client.
func (c *Client) Connect(ctx context.Context, addr string) error {
	const op = "narpc.Client.Connect"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	if c.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		logger.Error("Cannot connect to server", slogext.Err(err), slog.String("addr", addr))
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(c.opts.NoDelay); err != nil {
			conn.Close()
			return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
		}
	}

	c.conn = conn
	c.addr = addr
	c.log = logging.GetLoggerFromContext(ctx).With(slog.String("peer", addr))

	logger.Debug("Connected", slog.String("addr", addr), slog.Bool("nodelay", c.opts.NoDelay))
	return nil
}

func (c *Client) Addr() string {
	return c.addr
}

// IssueRequest sends req and returns a Future that completes once resp has
// been decoded. resp is registered before the first byte goes out. If the
// ticket slot is still taken by an unanswered request, responses are read
// off the wire until it frees up.
func (c *Client) IssueRequest(req, resp Message) (*Future, error) {
	const op = "narpc.Client.IssueRequest"

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	ticket := int64(c.seq%MaxInflight) + 1
	c.seq++

	f := &Future{client: c, ticket: ticket, resp: resp}

	var conn net.Conn
	for {
		c.mu.Lock()
		if err := c.usableLocked(); err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if c.slots[ticket] == nil {
			c.slots[ticket] = f
			conn = c.conn
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		if err := c.reap(func() bool { return c.slotFree(ticket) }); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	buf := c.sendBuf.Clear()
	putHeader(buf, int32(req.Size()+payloadLen(req)), ticket)
	if err := binary.Encode(buf, req); err != nil {
		c.release(ticket, f)
		return nil, fmt.Errorf("%s: encode %T: %w", op, req, err)
	}
	buf.Flip()

	bufs := net.Buffers{buf.Bytes()}
	if p := req.Payload(); p != nil && p.Remaining() > 0 {
		bufs = append(bufs, p.Bytes())
	}
	if _, err := bufs.WriteTo(conn); err != nil {
		err = fmt.Errorf("%w: send: %w", ErrTransport, err)
		c.fail(err)
		c.log.Error("Failed to send request", slogext.Err(err), slog.String("op", op), slog.Int64("ticket", ticket))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return f, nil
}

// PollResponse reads and dispatches exactly one response frame.
func (c *Client) PollResponse() error {
	const op = "narpc.Client.PollResponse"

	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if err := c.pollLocked(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Pending reports the number of requests awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, f := range c.slots {
		if f != nil {
			n++
		}
	}
	return n
}

func (c *Client) Close() error {
	const op = "narpc.Client.Close"

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.failLocked(ErrClosed)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.log.Debug("Connection closed", slog.String("op", op))
	return nil
}

func (c *Client) usableLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.err != nil:
		return c.err
	case c.conn == nil:
		return ErrNotConnected
	}
	return nil
}

func (c *Client) slotFree(ticket int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[ticket] == nil
}

func (c *Client) release(ticket int64, f *Future) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slots[ticket] == f {
		c.slots[ticket] = nil
	}
}

// reap reads frames until done reports true. done is re-checked after the
// receive lock is taken, since another reader may have got there first.
func (c *Client) reap(done func() bool) error {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	for !done() {
		if err := c.pollLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) pollLocked() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	conn := c.conn
	c.mu.Unlock()

	buf := c.recvBuf.Clear()
	buf.SetLimit(HeaderSize)
	if _, err := io.ReadFull(conn, buf.Bytes()); err != nil {
		return c.fail(fmt.Errorf("%w: receive header: %w", ErrTransport, err))
	}
	size := int(buf.GetInt())
	ticket := buf.GetLong()

	c.mu.Lock()
	var f *Future
	if ticket >= 1 && ticket <= MaxInflight {
		f = c.slots[ticket]
		c.slots[ticket] = nil
	}
	c.mu.Unlock()
	if f == nil {
		return c.fail(fmt.Errorf("%w: response for unknown ticket %d", ErrProtocol, ticket))
	}

	declared := payloadLen(f.resp)
	bodyLen := size - declared
	payloadN := declared
	if bodyLen != f.resp.Size() {
		// Peer sent a shorter payload than declared, e.g. a failed read.
		bodyLen = f.resp.Size()
		payloadN = size - bodyLen
		if payloadN < 0 || payloadN > declared {
			return c.fail(fmt.Errorf("%w: ticket %d frame size %d, body %d, payload %d", ErrProtocol, ticket, size, f.resp.Size(), declared))
		}
	}
	if bodyLen > buf.Capacity() {
		return c.fail(fmt.Errorf("%w: ticket %d body of %d bytes exceeds buffer", ErrProtocol, ticket, bodyLen))
	}

	buf.Clear()
	buf.SetLimit(bodyLen)
	if _, err := io.ReadFull(conn, buf.Bytes()); err != nil {
		return c.fail(fmt.Errorf("%w: receive body: %w", ErrTransport, err))
	}

	var respErr error
	if err := binary.Decode(buf, f.resp); err != nil {
		respErr = fmt.Errorf("%w: decode %T: %w", ErrProtocol, f.resp, err)
	}

	if payloadN > 0 {
		region, _ := f.resp.Payload().Slice(payloadN)
		if _, err := io.ReadFull(conn, region); err != nil {
			return c.fail(fmt.Errorf("%w: receive payload: %w", ErrTransport, err))
		}
	}

	c.mu.Lock()
	f.done = true
	f.err = respErr
	f.received = payloadN
	c.mu.Unlock()

	return nil
}

// fail marks the connection broken and fails every pending future.
func (c *Client) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err == nil && !c.closed {
		c.err = err
		if c.conn != nil {
			c.conn.Close()
		}
		c.log.Error("Connection failed", slogext.Err(err))
	}
	c.failLocked(err)
	return err
}

func (c *Client) failLocked(err error) {
	for i, f := range c.slots {
		if f != nil {
			f.done = true
			f.err = err
			c.slots[i] = nil
		}
	}
}

// Future is the pending result of one request.
type Future struct {
	client *Client
	ticket int64
	resp   Message

	// guarded by client.mu
	done     bool
	err      error
	received int
}

func (f *Future) Ticket() int64 {
	return f.ticket
}

// Received reports how many payload bytes arrived with the response. It is
// zero until Get returns.
func (f *Future) Received() int {
	f.client.mu.Lock()
	defer f.client.mu.Unlock()
	return f.received
}

// Get blocks until the response is decoded into the Message passed to
// IssueRequest.
func (f *Future) Get() error {
	if err := f.client.reap(f.isDone); err != nil && !f.isDone() {
		return err
	}

	f.client.mu.Lock()
	defer f.client.mu.Unlock()
	return f.err
}

func (f *Future) isDone() bool {
	f.client.mu.Lock()
	defer f.client.mu.Unlock()
	return f.done
}
