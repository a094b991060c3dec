package modbus

// RegisterType identifies a Modbus register class. Each class has a fixed
// read function code; only coils and holding registers can be written.
type RegisterType int

const (
	Coil RegisterType = iota
	DiscreteInput
	HoldingRegister
	InputRegister
)

func (rt RegisterType) String() string {
	switch rt {
	case Coil:
		return "coil"
	case DiscreteInput:
		return "discrete input"
	case HoldingRegister:
		return "holding register"
	case InputRegister:
		return "input register"
	default:
		return "unknown register type"
	}
}

// ReadCode returns the function code for reading this register class.
func (rt RegisterType) ReadCode() byte {
	switch rt {
	case Coil:
		return 0x01
	case DiscreteInput:
		return 0x02
	case HoldingRegister:
		return 0x03
	case InputRegister:
		return 0x04
	default:
		return 0
	}
}

// WriteCode returns the single-write function code for this register class,
// or ErrUnwritableRegister for classes that have none.
func (rt RegisterType) WriteCode() (byte, error) {
	switch rt {
	case Coil:
		return 0x05, nil
	case HoldingRegister:
		return 0x06, nil
	default:
		return 0, ErrUnwritableRegister
	}
}

// minFrameLength is address + function + 2 CRC bytes.
const minFrameLength = 4

// Frame is one complete Modbus RTU message without its trailing checksum.
// The checksum is derived on encode and verified on decode; it is never
// stored.
type Frame struct {
	Slave    byte
	Function byte
	Data     []byte
}

// NewFrame constructs a frame from its raw parts.
func NewFrame(slave, function byte, data []byte) Frame {
	return Frame{Slave: slave, Function: function, Data: data}
}

// NewReadRequest builds a request frame reading count contiguous registers of
// the given class starting at addr.
func NewReadRequest(slave byte, rt RegisterType, addr, count uint16) Frame {
	data := []byte{
		byte(addr >> 8), byte(addr),
		byte(count >> 8), byte(count),
	}
	return Frame{Slave: slave, Function: rt.ReadCode(), Data: data}
}

// NewWriteRequest builds a single-register write frame. Only coils and
// holding registers have a write function code; requesting a write for any
// other class is a programming error and fails before a frame is produced.
// For coils any nonzero value encodes as ON (0xFF00).
func NewWriteRequest(slave byte, rt RegisterType, addr, value uint16) (Frame, error) {
	code, err := rt.WriteCode()
	if err != nil {
		return Frame{}, err
	}
	if rt == Coil {
		if value != 0 {
			value = 0xFF00
		}
	}
	data := []byte{
		byte(addr >> 8), byte(addr),
		byte(value >> 8), byte(value),
	}
	return Frame{Slave: slave, Function: code, Data: data}, nil
}

// Bytes serializes the frame and appends the CRC-16, low byte first.
func (f Frame) Bytes() []byte {
	raw := make([]byte, 0, len(f.Data)+minFrameLength)
	raw = append(raw, f.Slave, f.Function)
	raw = append(raw, f.Data...)
	crc := crc16(raw)
	return append(raw, byte(crc), byte(crc>>8))
}

// Decode parses raw wire bytes into a Frame. It fails with ErrFrameTooShort
// below the 4-byte minimum, with *ChecksumError when the trailing CRC does
// not match, and with *ExceptionError when the function code has its high
// bit set (the first payload byte is then the exception code).
func Decode(raw []byte) (Frame, error) {
	if len(raw) < minFrameLength {
		return Frame{}, ErrFrameTooShort
	}

	body, tail := raw[:len(raw)-2], raw[len(raw)-2:]
	received := uint16(tail[0]) | uint16(tail[1])<<8
	if calculated := crc16(body); calculated != received {
		return Frame{}, &ChecksumError{Calculated: calculated, Received: received}
	}

	if body[1]&0x80 != 0 {
		code := byte(0)
		if len(body) > 2 {
			code = body[2]
		}
		return Frame{}, &ExceptionError{Function: body[1] & 0x7F, Code: code}
	}

	return Frame{
		Slave:    body[0],
		Function: body[1],
		Data:     append([]byte(nil), body[2:]...),
	}, nil
}
