package modbus

import (
	"fmt"
	"io"
	"sort"

	"go.bug.st/serial"
)

// Port is the minimal surface a Channel needs from a serial port. Reads are
// expected to block until data arrives or the port is closed; timeouts are
// applied by the Channel, not the port.
type Port interface {
	io.ReadWriteCloser
}

// PortOpener acquires the OS handle for a port path. The production opener
// goes through go.bug.st/serial; tests substitute their own.
type PortOpener func(path string, cfg Config) (Port, error)

// openSystemPort opens a real serial port with the channel's line settings.
func openSystemPort(path string, cfg Config) (Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   toSystemParity(cfg.Parity),
		StopBits: toSystemStopBits(cfg.StopBits),
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return port, nil
}

func toSystemParity(p Parity) serial.Parity {
	switch p {
	case ParityOdd:
		return serial.OddParity
	case ParityEven:
		return serial.EvenParity
	default:
		return serial.NoParity
	}
}

func toSystemStopBits(bits int) serial.StopBits {
	if bits == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

// ListPorts returns the serial ports currently present on the system,
// sorted for consistent ordering.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)
	return ports, nil
}
