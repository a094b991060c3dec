package modbus

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// InitFunc is an initialization handshake run after a channel's port has been
// opened. A non-nil error closes the port again and fails the open.
type InitFunc func(ctx context.Context, ch *Channel) error

// Config holds the configuration for a channel
type Config struct {
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      Parity
	ReadTimeout time.Duration
	QueueSize   int  // inbound queue capacity for the ingestion task
	AutoReceive bool // background ingestion vs. transaction-only mode
	Logger      zerolog.Logger
	Opener      PortOpener
	Init        InitFunc
}

// Option is a functional option for configuring a channel
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      ParityNone,
		ReadTimeout: 200 * time.Millisecond,
		QueueSize:   8,
		AutoReceive: true,
		Logger:      zerolog.Nop(),
		Opener:      openSystemPort,
	}
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if rate <= 0 {
			return ErrInvalidConfig
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		c.Parity = parity
		return nil
	}
}

// WithReadTimeout sets the timeout for a single ingestion-task read attempt
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.ReadTimeout = timeout
		return nil
	}
}

// WithQueueSize sets the inbound data queue capacity
func WithQueueSize(size int) Option {
	return func(c *Config) error {
		if size <= 0 {
			return ErrInvalidConfig
		}
		c.QueueSize = size
		return nil
	}
}

// WithAutoReceive toggles the background ingestion task. Transaction-driven
// channels disable it so explicit reads never contend with the reader loop.
func WithAutoReceive(enabled bool) Option {
	return func(c *Config) error {
		c.AutoReceive = enabled
		return nil
	}
}

// WithLogger sets the structured logger used by background tasks
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithOpener overrides how the underlying serial port is acquired.
// Intended for tests and alternative transports.
func WithOpener(opener PortOpener) Option {
	return func(c *Config) error {
		if opener == nil {
			return ErrInvalidConfig
		}
		c.Opener = opener
		return nil
	}
}

// WithInit sets the initialization handshake run after a successful open
func WithInit(fn InitFunc) Option {
	return func(c *Config) error {
		c.Init = fn
		return nil
	}
}
