package modbus

import (
	"errors"
	"fmt"
)

// Predefined error types for robust error handling
var (
	ErrNotOpen           = errors.New("serial port not open")
	ErrTimeout           = errors.New("response timeout")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrAlreadyRegistered = errors.New("port already registered")
	ErrPortNotFound      = errors.New("port not found in registry")
	ErrInvalidConfig     = errors.New("invalid channel configuration")

	// Framing errors
	ErrFrameTooShort      = errors.New("frame shorter than minimum length")
	ErrUnwritableRegister = errors.New("register type has no write function code")
	ErrFunctionMismatch   = errors.New("response function code does not match request")
	ErrResponseTooShort   = errors.New("response payload too short")
)

// ChecksumError reports a CRC divergence between the received frame and the
// locally recomputed checksum.
type ChecksumError struct {
	Calculated uint16
	Received   uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("crc mismatch: calculated %04X, received %04X", e.Calculated, e.Received)
}

// ExceptionError is a protocol-level exception response from the device.
// Function is the original function code with the high bit cleared; Code is
// the device-reported exception code.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception: function 0x%02X, code 0x%02X (%s)",
		e.Function, e.Code, exceptionMessage(e.Code))
}

// exceptionMessage returns a human-readable message for a Modbus exception code.
func exceptionMessage(code byte) string {
	switch code {
	case 0x01:
		return "illegal function"
	case 0x02:
		return "illegal data address"
	case 0x03:
		return "illegal data value"
	case 0x04:
		return "slave device failure"
	case 0x05:
		return "acknowledge"
	case 0x06:
		return "slave device busy"
	case 0x08:
		return "memory parity error"
	case 0x0A:
		return "gateway path unavailable"
	case 0x0B:
		return "gateway target device failed to respond"
	default:
		return "unknown exception code"
	}
}
