package modbus

import (
	"io"
	"sync"
	"testing"
	"time"
)

// mockPort implements Port for testing. Reads block on an internal queue;
// writes are recorded call-by-call so tests can assert on write boundaries.
type mockPort struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	closed   bool

	// onWrite, when set, runs after each successful write. Tests use it to
	// script responses.
	onWrite func(data []byte)

	reads     chan []byte
	closeOnce sync.Once
}

func newMockPort() *mockPort {
	return &mockPort{reads: make(chan []byte, 16)}
}

func (m *mockPort) Read(p []byte) (int, error) {
	data, ok := <-m.reads
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (m *mockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return 0, err
	}
	m.writes = append(m.writes, append([]byte(nil), p...))
	onWrite := m.onWrite
	m.mu.Unlock()

	if onWrite != nil {
		onWrite(p)
	}
	return len(p), nil
}

func (m *mockPort) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.closeOnce.Do(func() { close(m.reads) })
	return nil
}

// push queues data for the next read. An empty slice produces a zero-length
// read.
func (m *mockPort) push(data []byte) {
	m.reads <- data
}

func (m *mockPort) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockPort) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func (m *mockPort) recordedWrites() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// mockOpener hands out a fresh mockPort per open and keeps track of them.
type mockOpener struct {
	mu    sync.Mutex
	ports []*mockPort
	fail  error

	// setup, when set, configures each new port before it is returned.
	setup func(p *mockPort)
}

func (o *mockOpener) open(path string, cfg Config) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return nil, o.fail
	}
	p := newMockPort()
	if o.setup != nil {
		o.setup(p)
	}
	o.ports = append(o.ports, p)
	return p, nil
}

func (o *mockOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ports)
}

func (o *mockOpener) lastPort() *mockPort {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.ports) == 0 {
		return nil
	}
	return o.ports[len(o.ports)-1]
}

// fakeLister simulates the OS port list.
type fakeLister struct {
	mu    sync.Mutex
	ports []string
}

func (f *fakeLister) list() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ports...), nil
}

func (f *fakeLister) set(ports ...string) {
	f.mu.Lock()
	f.ports = ports
	f.mu.Unlock()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// waitEvent consumes events until one matches kind and port.
func waitEvent(t *testing.T, events <-chan Event, kind EventKind, port string, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed waiting for %v on %s", kind, port)
			}
			if ev.Kind == kind && ev.Port == port {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v on %s", kind, port)
		}
	}
}
