// Package modbus manages half-duplex Modbus RTU communication with hardware
// devices over hot-pluggable serial links.
//
// The package is built from three layers: a pure frame codec, a per-port
// Channel that owns the serial handle and runs transactions, and a Registry
// that tracks many channels and reconnects them as ports come and go.
//
// # Frame Codec
//
// Encode and decode RTU frames with CRC-16 checking and exception-response
// detection:
//
//	request := modbus.NewReadRequest(1, modbus.HoldingRegister, 0x4000, 1)
//	raw, err := ch.Transaction(ctx, request.Bytes(), time.Second)
//	frame, err := modbus.Decode(raw)
//
// Decode fails with *modbus.ChecksumError on CRC divergence and with
// *modbus.ExceptionError when the device reports a protocol exception.
//
// # Channels
//
// A Channel manages one port. Transaction-only channels perform explicit
// request/response exchanges; auto-receive channels run a background
// ingestion task instead. The two modes are mutually exclusive per channel.
//
//	ch, err := modbus.NewChannel(ctx, "/dev/ttyUSB0",
//	    modbus.WithBaudRate(9600),
//	    modbus.WithAutoReceive(false),
//	)
//	if err := ch.Open(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer ch.Cancel()
//
// # Registry
//
// The Registry owns channels, discovers ports appearing and disappearing,
// and publishes lifecycle events:
//
//	reg, err := modbus.NewRegistry()
//	reg.AddMonitored("/dev/ttyUSB0")
//	id, events := reg.Subscribe()
//	defer reg.Unsubscribe(id)
//
// Watched ports are re-registered and reopened automatically when they
// reappear; subscribers receive PortReconnected, PortRemovedFromSystem and
// the other Event kinds as that happens.
//
// # Error Handling
//
// Transport errors (ErrNotOpen, ErrTimeout, ErrConnectionClosed) and
// framing errors are all recoverable and reported to the caller; use
// errors.Is and errors.As:
//
//	if errors.Is(err, modbus.ErrTimeout) {
//	    // retry is caller policy
//	}
//
// No error short of a programming mistake (such as requesting a write
// function code for an unwritable register class) is fatal.
package modbus
