package modbus

import (
	"context"
	"errors"
	"testing"
	"time"
)

// readResponse builds a valid register-read response frame: the payload is
// a byte count followed by big-endian register values.
func readResponse(slave, function byte, values ...uint16) []byte {
	data := []byte{byte(2 * len(values))}
	for _, v := range values {
		data = append(data, byte(v>>8), byte(v))
	}
	return NewFrame(slave, function, data).Bytes()
}

func newProbeChannel(t *testing.T, respond func(request []byte) []byte) *Channel {
	t.Helper()
	opener := &mockOpener{setup: func(p *mockPort) {
		p.onWrite = func(data []byte) {
			if resp := respond(data); resp != nil {
				p.push(resp)
			}
		}
	}}
	ch := newTestChannel(t, opener)
	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return ch
}

func TestReadRegister(t *testing.T) {
	ch := newProbeChannel(t, func(request []byte) []byte {
		return readResponse(0x01, 0x03, 0x001C)
	})

	values, err := ReadRegister(context.Background(), ch, 0x01, HoldingRegister, 0x4000, 1, time.Second)
	if err != nil {
		t.Fatalf("ReadRegister failed: %v", err)
	}
	if len(values) != 1 || values[0] != 0x001C {
		t.Errorf("values = %v, want [0x001C]", values)
	}
}

func TestReadRegisterMultiple(t *testing.T) {
	ch := newProbeChannel(t, func(request []byte) []byte {
		return readResponse(0x01, 0x04, 0x1234, 0xABCD)
	})

	values, err := ReadRegister(context.Background(), ch, 0x01, InputRegister, 0x0010, 2, time.Second)
	if err != nil {
		t.Fatalf("ReadRegister failed: %v", err)
	}
	if len(values) != 2 || values[0] != 0x1234 || values[1] != 0xABCD {
		t.Errorf("values = %#v, want [0x1234 0xABCD]", values)
	}
}

func TestReadRegisterFunctionMismatch(t *testing.T) {
	ch := newProbeChannel(t, func(request []byte) []byte {
		return readResponse(0x01, 0x04, 0x001C) // asked 0x03, answered 0x04
	})

	_, err := ReadRegister(context.Background(), ch, 0x01, HoldingRegister, 0x4000, 1, time.Second)
	if !errors.Is(err, ErrFunctionMismatch) {
		t.Errorf("err = %v, want ErrFunctionMismatch", err)
	}
}

func TestReadRegisterShortPayload(t *testing.T) {
	ch := newProbeChannel(t, func(request []byte) []byte {
		return NewFrame(0x01, 0x03, []byte{0x02}).Bytes() // byte count, no data
	})

	_, err := ReadRegister(context.Background(), ch, 0x01, HoldingRegister, 0x4000, 1, time.Second)
	if !errors.Is(err, ErrResponseTooShort) {
		t.Errorf("err = %v, want ErrResponseTooShort", err)
	}
}

func TestReadRegisterException(t *testing.T) {
	ch := newProbeChannel(t, func(request []byte) []byte {
		return NewFrame(0x01, 0x83, []byte{0x02}).Bytes()
	})

	_, err := ReadRegister(context.Background(), ch, 0x01, HoldingRegister, 0x9999, 1, time.Second)
	var exc *ExceptionError
	if !errors.As(err, &exc) {
		t.Fatalf("err = %v, want ExceptionError", err)
	}
	if exc.Function != 0x03 || exc.Code != 0x02 {
		t.Errorf("exception = function 0x%02X code 0x%02X, want 0x03/0x02", exc.Function, exc.Code)
	}
}

func TestWriteHoldingRegister(t *testing.T) {
	var echoed []byte
	ch := newProbeChannel(t, func(request []byte) []byte {
		echoed = append([]byte(nil), request...)
		return echoed // devices echo a successful single write
	})

	if err := WriteHoldingRegister(context.Background(), ch, 0x01, 0x0100, 0x00FF, time.Second); err != nil {
		t.Fatalf("WriteHoldingRegister failed: %v", err)
	}
	want := NewFrame(0x01, 0x06, []byte{0x01, 0x00, 0x00, 0xFF}).Bytes()
	if len(echoed) != len(want) {
		t.Fatalf("request = % X, want % X", echoed, want)
	}
	for i := range want {
		if echoed[i] != want[i] {
			t.Fatalf("request = % X, want % X", echoed, want)
		}
	}
}

func TestWriteRegisterUnwritable(t *testing.T) {
	opener := &mockOpener{}
	ch := newTestChannel(t, opener)
	if err := ch.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	err := WriteRegister(context.Background(), ch, 0x01, DiscreteInput, 0x0000, 1, time.Second)
	if !errors.Is(err, ErrUnwritableRegister) {
		t.Fatalf("err = %v, want ErrUnwritableRegister", err)
	}
	// The failure happens before any bytes reach the wire.
	if opener.lastPort().writeCount() != 0 {
		t.Errorf("port saw %d writes, want 0", opener.lastPort().writeCount())
	}
}

func TestDetectChip(t *testing.T) {
	tests := []struct {
		name  string
		base  uint16
		value uint16
		want  ChipKind
	}{
		{"mald primary", Chip1BaseAddr, 0x1C, ChipMALD},
		{"mald secondary", Chip1BaseAddr, 0x1D, ChipMALD},
		{"mata primary", Chip2BaseAddr, 0x10, ChipMATA},
		{"mata secondary", Chip2BaseAddr, 0x11, ChipMATA},
		{"unrecognized value", Chip1BaseAddr, 0x99, ChipUnknown},
		{"family value at wrong site", Chip2BaseAddr, 0x1C, ChipUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newProbeChannel(t, func(request []byte) []byte {
				return readResponse(0x01, 0x03, tt.value)
			})

			got, err := DetectChip(context.Background(), ch, 0x01, tt.base, time.Second)
			if err != nil {
				t.Fatalf("DetectChip failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectChip = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectChips(t *testing.T) {
	ch := newProbeChannel(t, func(request []byte) []byte {
		addr := uint16(request[2])<<8 | uint16(request[3])
		switch addr {
		case Chip1BaseAddr:
			return readResponse(0x01, 0x03, 0x1C)
		case Chip2BaseAddr:
			return readResponse(0x01, 0x03, 0x11)
		}
		return nil
	})

	chip1, chip2 := DetectChips(context.Background(), ch, 0x01, time.Second)
	if chip1 != ChipMALD || chip2 != ChipMATA {
		t.Errorf("DetectChips = %v/%v, want MALD/MATA", chip1, chip2)
	}
}

func TestDetectChipsFirstSiteSilent(t *testing.T) {
	ch := newProbeChannel(t, func(request []byte) []byte {
		addr := uint16(request[2])<<8 | uint16(request[3])
		if addr == Chip2BaseAddr {
			return readResponse(0x01, 0x03, 0x10)
		}
		return nil // first site never answers
	})

	chip1, chip2 := DetectChips(context.Background(), ch, 0x01, 30*time.Millisecond)
	if chip1 != ChipUnknown {
		t.Errorf("chip1 = %v, want unknown", chip1)
	}
	if chip2 != ChipMATA {
		t.Errorf("chip2 = %v, want MATA", chip2)
	}
}
