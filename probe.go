package modbus

import (
	"context"
	"fmt"
	"time"
)

// ChipKind labels the device family identified by probing its family
// register. The mapping from register values to families is probe policy,
// not protocol; it can change without touching the transaction engine.
type ChipKind int

const (
	ChipUnknown ChipKind = iota
	ChipMALD
	ChipMATA
)

func (k ChipKind) String() string {
	switch k {
	case ChipMALD:
		return "MALD"
	case ChipMATA:
		return "MATA"
	default:
		return "unknown"
	}
}

// Family register base addresses for the two chip sites.
const (
	Chip1BaseAddr uint16 = 0x4000
	Chip2BaseAddr uint16 = 0xC000
)

// chipProbeGap spaces consecutive probes so the device's bus settles
// between transactions.
const chipProbeGap = 100 * time.Millisecond

// ReadRegister reads count registers of the given class starting at addr and
// returns their values. The response layout is [byte count, hi, lo, ...].
func ReadRegister(ctx context.Context, ch *Channel, slave byte, rt RegisterType, addr, count uint16, timeout time.Duration) ([]uint16, error) {
	request := NewReadRequest(slave, rt, addr, count)

	raw, err := ch.Transaction(ctx, request.Bytes(), timeout)
	if err != nil {
		return nil, err
	}

	frame, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if frame.Function != request.Function {
		return nil, fmt.Errorf("%w: sent 0x%02X, got 0x%02X",
			ErrFunctionMismatch, request.Function, frame.Function)
	}
	if len(frame.Data) < 1+2*int(count) {
		return nil, ErrResponseTooShort
	}

	values := make([]uint16, count)
	for i := range values {
		hi, lo := frame.Data[1+2*i], frame.Data[2+2*i]
		values[i] = uint16(hi)<<8 | uint16(lo)
	}
	return values, nil
}

// ReadHoldingRegister reads a single holding register.
func ReadHoldingRegister(ctx context.Context, ch *Channel, slave byte, addr uint16, timeout time.Duration) (uint16, error) {
	values, err := ReadRegister(ctx, ch, slave, HoldingRegister, addr, 1, timeout)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// WriteRegister writes value to a single register of the given class. Only
// coils and holding registers are writable; other classes fail fast before
// any I/O.
func WriteRegister(ctx context.Context, ch *Channel, slave byte, rt RegisterType, addr, value uint16, timeout time.Duration) error {
	request, err := NewWriteRequest(slave, rt, addr, value)
	if err != nil {
		return err
	}

	raw, err := ch.Transaction(ctx, request.Bytes(), timeout)
	if err != nil {
		return err
	}

	frame, err := Decode(raw)
	if err != nil {
		return err
	}
	if frame.Function != request.Function {
		return fmt.Errorf("%w: sent 0x%02X, got 0x%02X",
			ErrFunctionMismatch, request.Function, frame.Function)
	}
	return nil
}

// WriteHoldingRegister writes a single holding register.
func WriteHoldingRegister(ctx context.Context, ch *Channel, slave byte, addr, value uint16, timeout time.Duration) error {
	return WriteRegister(ctx, ch, slave, HoldingRegister, addr, value, timeout)
}

// DetectChip reads the family register at base and maps its value to a chip
// family. An unrecognized value is ChipUnknown, not an error; transport and
// framing failures are.
func DetectChip(ctx context.Context, ch *Channel, slave byte, base uint16, timeout time.Duration) (ChipKind, error) {
	value, err := ReadHoldingRegister(ctx, ch, slave, base, timeout)
	if err != nil {
		return ChipUnknown, err
	}

	switch base {
	case Chip1BaseAddr:
		if value == 0x1C || value == 0x1D {
			return ChipMALD, nil
		}
	case Chip2BaseAddr:
		if value == 0x10 || value == 0x11 {
			return ChipMATA, nil
		}
	}
	return ChipUnknown, nil
}

// DetectChips probes both chip sites in sequence. A failed probe yields
// ChipUnknown for that site; the other site is still attempted.
func DetectChips(ctx context.Context, ch *Channel, slave byte, timeout time.Duration) (ChipKind, ChipKind) {
	chip1, err := DetectChip(ctx, ch, slave, Chip1BaseAddr, timeout)
	if err != nil {
		chip1 = ChipUnknown
	}

	select {
	case <-ctx.Done():
		return chip1, ChipUnknown
	case <-time.After(chipProbeGap):
	}

	chip2, err := DetectChip(ctx, ch, slave, Chip2BaseAddr, timeout)
	if err != nil {
		chip2 = ChipUnknown
	}
	return chip1, chip2
}
