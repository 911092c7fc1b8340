package reflex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/storage"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
	"github.com/S1riyS/pocketfs/pkg/logging/slogext"
)

var (
	ErrUnaligned    = errors.New("reflex: address not sector aligned")
	ErrClosed       = errors.New("reflex: client closed")
	ErrNotConnected = errors.New("reflex: not connected")
	ErrTransport    = errors.New("reflex: transport failure")
	ErrProtocol     = errors.New("reflex: protocol violation")
)

type Options struct {
	NoDelay     bool
	DialTimeout time.Duration
}

// Client issues sector reads and writes. Like narpc, futures poll the
// connection inline; responses are matched to futures by ticket only.
type Client struct {
	opts Options
	log  *slog.Logger

	sendMu  sync.Mutex
	sendBuf *binary.Buffer
	seq     int64
	zeros   [SectorSize]byte

	recvMu  sync.Mutex
	recvBuf *binary.Buffer

	mu      sync.Mutex
	conn    net.Conn
	pending map[int64]*future
	err     error
	closed  bool
}

func New(opts Options) *Client {
	return &Client{
		opts:    opts,
		log:     logging.Discard(),
		sendBuf: binary.NewBuffer(HeaderSize).SetOrder(binary.LittleEndian),
		recvBuf: binary.NewBuffer(HeaderSize).SetOrder(binary.LittleEndian),
		pending: make(map[int64]*future),
	}
}

func Factory(opts Options) storage.Factory {
	return func() storage.Client { return New(opts) }
}

func (c *Client) Connect(ctx context.Context, endpoint models.DatanodeInfo) error {
	const op = "reflex.Client.Connect"

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
	conn, err := d.DialContext(ctx, "tcp", endpoint.Address())
	if err != nil {
		logger.Error("Cannot connect to block node", slogext.Err(err), slog.String("endpoint", endpoint.String()))
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(c.opts.NoDelay)
	}

	c.conn = conn
	c.log = logging.GetLoggerFromContext(ctx).With(slog.String("peer", endpoint.Address()))

	logger.Debug("Connected to block node", slog.String("endpoint", endpoint.String()))
	return nil
}

func (c *Client) Close() error {
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
	return conn.Close()
}

// LBA converts a byte address to a sector number.
func LBA(address int64) (int64, error) {
	if address < 0 || address%SectorSize != 0 {
		return 0, fmt.Errorf("%w: %d", ErrUnaligned, address)
	}
	return address / SectorSize, nil
}

// WriteData sends buf's remaining bytes followed by zeros up to the next
// sector boundary.
func (c *Client) WriteData(_ int32, address int64, buf *binary.Buffer) (storage.Future, error) {
	const op = "reflex.Client.WriteData"

	lba, err := LBA(address)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	n := buf.Remaining()
	count := Sectors(n)
	pad := int(count)*SectorSize - n

	f := &future{client: c, op: OpPut, n: n}
	bufs := net.Buffers{nil, buf.Bytes()}
	if pad > 0 {
		bufs = append(bufs, c.zeros[:pad])
	}

	if err := c.issue(f, lba, count, bufs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}

// ReadData fills buf's remaining bytes. The node only serves whole
// sectors, so unless the range is sector aligned on both ends the covering
// sectors are staged and the requested bytes copied out. Bytes outside
// buf's [position, limit) are never written.
func (c *Client) ReadData(_ int32, address int64, buf *binary.Buffer) (storage.Future, error) {
	const op = "reflex.Client.ReadData"

	if address < 0 {
		return nil, fmt.Errorf("%s: %w: %d", op, ErrUnaligned, address)
	}
	skip := int(address % SectorSize)
	lba := (address - int64(skip)) / SectorSize

	n := buf.Remaining()
	count := Sectors(skip + n)
	padded := int(count) * SectorSize

	f := &future{client: c, op: OpGet, n: n}
	if skip == 0 && padded == n {
		f.target = buf.Bytes()
	} else {
		f.target = make([]byte, padded)
		f.dst = buf.Bytes()
		f.skip = skip
	}

	if err := c.issue(f, lba, count, net.Buffers{nil}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}

// issue registers f under a fresh ticket and sends the header plus bufs[1:].
// bufs[0] is replaced by the encoded header.
func (c *Client) issue(f *future, lba int64, count int32, bufs net.Buffers) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.seq++
	f.ticket = c.seq
	f.count = count

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	conn := c.conn
	c.pending[f.ticket] = f
	c.mu.Unlock()

	hdr := NewHeader(f.op, f.ticket, lba, count)
	c.sendBuf.Clear()
	if err := binary.Encode(c.sendBuf, &hdr); err != nil {
		c.mu.Lock()
		delete(c.pending, f.ticket)
		c.mu.Unlock()
		return err
	}
	bufs[0] = c.sendBuf.Flip().Bytes()

	if _, err := bufs.WriteTo(conn); err != nil {
		return c.fail(fmt.Errorf("%w: send: %w", ErrTransport, err))
	}
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
	if _, err := io.ReadFull(conn, buf.Bytes()); err != nil {
		return c.fail(fmt.Errorf("%w: receive header: %w", ErrTransport, err))
	}
	var hdr Header
	if err := binary.Decode(buf, &hdr); err != nil {
		return c.fail(fmt.Errorf("%w: %w", ErrProtocol, err))
	}
	if err := hdr.Validate(); err != nil {
		return c.fail(fmt.Errorf("%w: %w", ErrProtocol, err))
	}

	c.mu.Lock()
	f, ok := c.pending[hdr.Ticket]
	delete(c.pending, hdr.Ticket)
	c.mu.Unlock()
	if !ok {
		return c.fail(fmt.Errorf("%w: response for unknown ticket %d", ErrProtocol, hdr.Ticket))
	}
	if hdr.Op != f.op || hdr.Count != f.count {
		return c.fail(fmt.Errorf("%w: ticket %d answered op=%d count=%d, sent op=%d count=%d",
			ErrProtocol, hdr.Ticket, hdr.Op, hdr.Count, f.op, f.count))
	}

	if f.op == OpGet {
		if _, err := io.ReadFull(conn, f.target[:int(hdr.Count)*SectorSize]); err != nil {
			return c.fail(fmt.Errorf("%w: receive data: %w", ErrTransport, err))
		}
		if f.dst != nil {
			copy(f.dst, f.target[f.skip:f.skip+f.n])
		}
	}

	c.mu.Lock()
	f.done = true
	c.mu.Unlock()
	return nil
}

func (c *Client) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err == nil && !c.closed {
		c.err = err
		if c.conn != nil {
			c.conn.Close()
		}
		c.log.Error("Block connection failed", slogext.Err(err))
	}
	c.failLocked(err)
	return err
}

func (c *Client) failLocked(err error) {
	for ticket, f := range c.pending {
		f.done = true
		f.err = err
		delete(c.pending, ticket)
	}
}

type future struct {
	client *Client
	ticket int64
	op     int16
	count  int32
	n      int
	target []byte
	dst    []byte
	skip   int

	// guarded by client.mu
	done bool
	err  error
}

func (f *future) Get() (int, error) {
	const op = "reflex.future.Get"

	if err := f.client.reap(f.isDone); err != nil && !f.isDone() {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	f.client.mu.Lock()
	defer f.client.mu.Unlock()
	if f.err != nil {
		return 0, fmt.Errorf("%s: %w", op, f.err)
	}
	return f.n, nil
}

func (f *future) isDone() bool {
	f.client.mu.Lock()
	defer f.client.mu.Unlock()
	return f.done
}
