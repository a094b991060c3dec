package modbus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	// portAbsentRetry is how long the ingestion task waits between checks
	// while the port handle is absent. Reconnection itself is the
	// registry's job.
	portAbsentRetry = time.Second

	// queueStallTimeout bounds how long the ingestion task waits on a full
	// inbound queue before treating the consumer as gone.
	queueStallTimeout = time.Second

	readBufferSize = 1024
)

// Channel owns one physical serial port: its open/closed state, explicit
// request/response transactions, and (in auto-receive mode) a background
// ingestion path. A channel runs in exactly one of two modes, chosen at
// construction: auto-receive, where a background task continuously drains
// the port, or transaction-only, where all reads happen inside Transaction.
// Mixing the two on one port would corrupt response framing.
type Channel struct {
	path string
	cfg  Config

	mu   sync.Mutex // guards port and chunks
	port Port

	// chunks feeds Transaction from a per-handle reader goroutine on
	// transaction-mode channels; nil in auto-receive mode, where the
	// ingestion task owns all reads.
	chunks chan readResult

	// connected mirrors port presence so Send and status queries can skip
	// the lock when the port is known closed.
	connected atomic.Bool

	ctx        context.Context
	cancel     context.CancelFunc
	cancelOnce sync.Once

	inbound chan []byte

	bufMu sync.Mutex
	buf   bytes.Buffer

	log zerolog.Logger
}

// NewChannel creates a channel for the port at path as a child of parent:
// cancelling parent cancels the channel's background tasks. The port is not
// opened; call Open. In auto-receive mode (the default) the ingestion and
// processing tasks start immediately and idle until the port is opened.
func NewChannel(parent context.Context, path string, opts ...Option) (*Channel, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Channel{
		path:    path,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		inbound: make(chan []byte, cfg.QueueSize),
		log:     cfg.Logger.With().Str("port", path).Logger(),
	}

	if cfg.AutoReceive {
		go c.processLoop()
		go c.ingestLoop()
	}

	return c, nil
}

// Path returns the port identifier this channel manages.
func (c *Channel) Path() string {
	return c.path
}

// Config returns the channel's configuration.
func (c *Channel) Config() Config {
	return c.cfg
}

// IsOpen reports the connectivity flag without taking the port lock.
func (c *Channel) IsOpen() bool {
	return c.connected.Load()
}

// Done is closed once the channel has been cancelled.
func (c *Channel) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Open acquires the OS handle at the configured baud rate and runs the
// initialization handshake, if any. It is idempotent: an already-open
// channel returns nil without reacquiring the handle. If initialization
// fails the port is closed again, so a half-initialized connection is never
// observable.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.port != nil {
		c.connected.Store(true)
		c.mu.Unlock()
		c.log.Debug().Msg("port already open")
		return nil
	}

	c.log.Info().Int("baud", c.cfg.BaudRate).Msg("opening port")
	port, err := c.cfg.Opener(c.path, c.cfg)
	if err != nil {
		c.connected.Store(false)
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("open failed")
		return err
	}
	c.port = port
	c.connected.Store(true)
	if !c.cfg.AutoReceive {
		// One reader per handle. Transaction consumes from this channel,
		// so a request can never race an earlier request's leftover read.
		c.chunks = make(chan readResult, 1)
		go readChunks(c.ctx, port, c.chunks)
	}
	c.mu.Unlock()

	if c.cfg.Init != nil {
		if err := c.cfg.Init(ctx, c); err != nil {
			c.log.Error().Err(err).Msg("initialization failed, closing port")
			c.Close()
			return fmt.Errorf("initialize %s: %w", c.path, err)
		}
	}
	return nil
}

// Close releases the OS handle and clears the connectivity flag. It is safe
// to call on an already-closed channel and does not stop background tasks;
// only Cancel does that.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.port != nil {
		c.log.Info().Msg("closing port")
		err = c.port.Close()
		c.port = nil
		c.chunks = nil
	}
	c.connected.Store(false)
	return err
}

// Cancel closes the port and permanently stops the channel's background
// tasks. It is one-shot and idempotent; a cancelled channel cannot be
// reused.
func (c *Channel) Cancel() {
	c.cancelOnce.Do(func() {
		c.log.Info().Msg("cancelling channel")
		c.Close()
		c.cancel()
	})
}

// Send writes data to the port. It fails fast with ErrNotOpen when the
// connectivity flag is down. A write failure is reported to the caller but
// does not flip the flag: disconnection is declared by the read path only,
// so two paths never race to mark the port dead.
func (c *Channel) Send(data []byte) error {
	if !c.connected.Load() {
		return ErrNotOpen
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return ErrNotOpen
	}

	c.log.Debug().Hex("data", data).Msg("send")
	if err := writeAll(c.port, data); err != nil {
		c.log.Error().Err(err).Msg("write failed")
		return fmt.Errorf("write %s: %w", c.path, err)
	}
	return nil
}

// Transaction writes request and reads the device's response under timeout.
// Reading stops once at least 4 bytes (the minimum viable frame) have
// accumulated, or on a zero-length read: with prior data that is a complete,
// if short, response; without it, ErrConnectionClosed. ErrTimeout is
// returned when neither happens before the deadline. The 4-byte heuristic
// trades strict length validation for responsiveness; Decode performs the
// authoritative checksum and length checks afterwards.
//
// Transaction is meant for channels constructed with WithAutoReceive(false);
// on an auto-receive channel it contends with the ingestion task for reads.
// The write and read share one lock, so two transactions on the same
// channel can never interleave on the wire, and any bytes a previous
// exchange left unclaimed are discarded before the request is written.
func (c *Channel) Transaction(ctx context.Context, request []byte, timeout time.Duration) ([]byte, error) {
	if !c.connected.Load() {
		return nil, ErrNotOpen
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil, ErrNotOpen
	}

	chunks := c.chunks
	if chunks == nil {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		chunks = make(chan readResult, 1)
		go readChunks(ctx, c.port, chunks)
	} else if flushChunks(chunks) {
		return nil, ErrConnectionClosed
	}

	c.log.Debug().Hex("request", request).Msg("transaction")
	if err := writeAll(c.port, request); err != nil {
		c.log.Error().Err(err).Msg("transaction write failed")
		return nil, fmt.Errorf("write %s: %w", c.path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var response []byte
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				c.log.Warn().Msg("transaction timed out")
				return nil, ErrTimeout
			}
			return nil, ctx.Err()

		case r := <-chunks:
			if r.err != nil && !errors.Is(r.err, io.EOF) {
				c.log.Error().Err(r.err).Msg("transaction read failed")
				return nil, fmt.Errorf("read %s: %w", c.path, r.err)
			}
			if r.err != nil || len(r.data) == 0 {
				// Stream end: prior data is a complete short response,
				// nothing at all means the port went away.
				if len(response) > 0 {
					return response, nil
				}
				return nil, ErrConnectionClosed
			}
			response = append(response, r.data...)
			if len(response) >= minFrameLength {
				c.log.Debug().Hex("response", response).Msg("transaction complete")
				return response, nil
			}
		}
	}
}

// Buffered reports how many passively ingested bytes are waiting.
func (c *Channel) Buffered() int {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	return c.buf.Len()
}

// Drain returns and clears the bytes accumulated by the processing task.
func (c *Channel) Drain() []byte {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	data := append([]byte(nil), c.buf.Bytes()...)
	c.buf.Reset()
	return data
}

type readResult struct {
	data []byte
	err  error
}

// readChunks feeds successive port reads into out until a read error, a
// zero-length read, or ctx is done. The blocking OS read itself cannot be
// aborted; after cancellation the goroutine exits once its in-flight read
// resolves.
func readChunks(ctx context.Context, p Port, out chan<- readResult) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := p.Read(buf)
		r := readResult{err: err}
		if n > 0 {
			r.data = append([]byte(nil), buf[:n]...)
		}
		select {
		case out <- r:
		case <-ctx.Done():
			return
		}
		if err != nil || n == 0 {
			return
		}
	}
}

// flushChunks discards results a previous exchange left unclaimed, such as
// a response that arrived after its transaction timed out. It reports
// whether the stream has already ended, meaning the reader goroutine has
// exited and no response can ever arrive.
func flushChunks(chunks <-chan readResult) (ended bool) {
	for {
		select {
		case r := <-chunks:
			if r.err != nil || len(r.data) == 0 {
				return true
			}
		default:
			return false
		}
	}
}

// ingestLoop runs the background ingestion task for auto-receive channels.
// While a port handle is present it drains reads into the inbound queue;
// while absent it sleeps and re-checks, leaving reconnection to the
// registry. Only cancellation stops it.
func (c *Channel) ingestLoop() {
	c.log.Debug().Msg("ingestion task started")
	defer c.log.Debug().Msg("ingestion task stopped")

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		port := c.currentPort()
		if port == nil {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(portAbsentRetry):
			}
			continue
		}

		if !c.readSession(port) {
			return
		}
	}
}

// readSession drains one open port until it disconnects. Each read attempt
// is bounded by the configured read timeout; expiry is a non-event and the
// wait simply restarts, so a silent device neither disconnects the port nor
// delays cancellation. It returns false when the ingestion task should stop
// for good: cancellation, or an inbound queue whose consumer has stalled.
func (c *Channel) readSession(port Port) bool {
	sessionCtx, stop := context.WithCancel(c.ctx)
	defer stop()

	chunks := make(chan readResult, 1)
	go readChunks(sessionCtx, port, chunks)

	for {
		select {
		case <-c.ctx.Done():
			return false

		case <-time.After(c.cfg.ReadTimeout):
			continue

		case r := <-chunks:
			if r.err != nil && !errors.Is(r.err, io.EOF) {
				c.log.Info().Err(r.err).Msg("read failed, marking port disconnected")
				c.dropPort()
				return true
			}
			if r.err != nil || len(r.data) == 0 {
				c.log.Info().Msg("zero-length read, marking port disconnected")
				c.dropPort()
				return true
			}

			select {
			case c.inbound <- r.data:
			case <-c.ctx.Done():
				return false
			case <-time.After(queueStallTimeout):
				c.log.Error().Msg("inbound queue stalled, stopping ingestion")
				c.connected.Store(false)
				return false
			}
		}
	}
}

// processLoop drains the inbound queue into the accumulation buffer.
func (c *Channel) processLoop() {
	c.log.Debug().Msg("processing task started")
	defer c.log.Debug().Msg("processing task stopped")

	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.inbound:
			c.bufMu.Lock()
			c.buf.Write(data)
			c.bufMu.Unlock()
			c.log.Debug().Int("bytes", len(data)).Msg("ingested data")
		}
	}
}

func (c *Channel) currentPort() Port {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// dropPort releases the handle and clears the flag after a read-path
// disconnect. The channel keeps running so the registry can reopen it.
func (c *Channel) dropPort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port != nil {
		c.port.Close()
		c.port = nil
	}
	c.connected.Store(false)
}

func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
