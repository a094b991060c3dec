package modbus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T, lister *fakeLister, opener *mockOpener, opts ...RegistryOption) *Registry {
	t.Helper()
	opts = append([]RegistryOption{
		WithPortLister(lister.list),
		WithPortOpener(opener.open),
		WithScanInterval(20 * time.Millisecond),
		WithCloseGrace(10 * time.Millisecond),
	}, opts...)

	r, err := NewRegistry(opts...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	t.Cleanup(r.CloseAll)
	return r
}

func TestRegistryAddDuplicate(t *testing.T) {
	r := newTestRegistry(t, &fakeLister{}, &mockOpener{}, WithScanInterval(time.Hour))

	if err := r.AddWithDefaults("P1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := r.AddWithDefaults("P1"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("second Add err = %v, want ErrAlreadyRegistered", err)
	}
	if err := r.AddProbe("P1", 9600); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("AddProbe err = %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegistryAddWithDefaults(t *testing.T) {
	r := newTestRegistry(t, &fakeLister{}, &mockOpener{},
		WithScanInterval(time.Hour),
		WithDefaultBaudRate(9600),
		WithDefaultReadTimeout(50*time.Millisecond),
	)

	if err := r.AddWithDefaults("P1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	ch, _ := r.Get("P1")
	cfg := ch.Config()
	if cfg.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", cfg.BaudRate)
	}
	if cfg.ReadTimeout != 50*time.Millisecond {
		t.Errorf("ReadTimeout = %v, want 50ms", cfg.ReadTimeout)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := newTestRegistry(t, &fakeLister{}, &mockOpener{}, WithScanInterval(time.Hour))

	if err := r.AddWithDefaults("P1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ch := r.Remove("P1")
	if ch == nil {
		t.Fatal("Remove returned nil for a registered port")
	}
	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("removed channel not cancelled")
	}
	if _, ok := r.Get("P1"); ok {
		t.Error("Get succeeded after Remove")
	}
	if r.Remove("P1") != nil {
		t.Error("second Remove returned a channel")
	}
}

func TestRegistryPorts(t *testing.T) {
	r := newTestRegistry(t, &fakeLister{}, &mockOpener{}, WithScanInterval(time.Hour))

	for _, p := range []string{"P3", "P1", "P2"} {
		if err := r.AddWithDefaults(p); err != nil {
			t.Fatalf("Add(%s) failed: %v", p, err)
		}
	}
	got := r.Ports()
	want := []string{"P1", "P2", "P3"}
	if len(got) != len(want) {
		t.Fatalf("Ports() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Ports() = %v, want %v", got, want)
		}
	}
}

func TestRegistrySendTo(t *testing.T) {
	opener := &mockOpener{}
	r := newTestRegistry(t, &fakeLister{}, opener, WithScanInterval(time.Hour))

	if err := r.SendTo("nope", []byte{0x01}); !errors.Is(err, ErrPortNotFound) {
		t.Errorf("SendTo unknown port err = %v, want ErrPortNotFound", err)
	}

	if err := r.AddWithDefaults("P1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := r.SendTo("P1", []byte{0x01}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SendTo closed port err = %v, want ErrNotOpen", err)
	}

	r.OpenAll(context.Background())
	if err := r.SendTo("P1", []byte{0x01, 0x02}); err != nil {
		t.Fatalf("SendTo failed: %v", err)
	}
	if opener.lastPort().writeCount() != 1 {
		t.Errorf("port saw %d writes, want 1", opener.lastPort().writeCount())
	}
}

func TestRegistryOpenAllCloseAll(t *testing.T) {
	opener := &mockOpener{}
	lister := &fakeLister{}
	r := newTestRegistry(t, lister, opener, WithScanInterval(time.Hour))

	for _, p := range []string{"P1", "P2"} {
		if err := r.AddWithDefaults(p); err != nil {
			t.Fatalf("Add(%s) failed: %v", p, err)
		}
	}

	r.OpenAll(context.Background())
	for _, p := range []string{"P1", "P2"} {
		ch, ok := r.Get(p)
		if !ok || !ch.IsOpen() {
			t.Fatalf("%s not open after OpenAll", p)
		}
	}
	if opener.openCount() != 2 {
		t.Errorf("opener called %d times, want 2", opener.openCount())
	}

	// Already-open channels are skipped.
	r.OpenAll(context.Background())
	if opener.openCount() != 2 {
		t.Errorf("opener called %d times after second OpenAll, want 2", opener.openCount())
	}

	chans := make([]*Channel, 0, 2)
	for _, p := range []string{"P1", "P2"} {
		ch, _ := r.Get(p)
		chans = append(chans, ch)
	}

	r.CloseAll()
	for _, ch := range chans {
		select {
		case <-ch.Done():
		case <-time.After(time.Second):
			t.Fatalf("%s not cancelled by CloseAll", ch.Path())
		}
		if ch.IsOpen() {
			t.Errorf("%s still open after CloseAll", ch.Path())
		}
	}
}

func TestRegistryBroadcast(t *testing.T) {
	opener := &mockOpener{}
	r := newTestRegistry(t, &fakeLister{}, opener, WithScanInterval(time.Hour))

	for _, p := range []string{"P1", "P2", "P3"} {
		if err := r.AddWithDefaults(p); err != nil {
			t.Fatalf("Add(%s) failed: %v", p, err)
		}
	}
	r.OpenAll(context.Background())

	// Best-effort: one closed port must not affect the others.
	ch, _ := r.Get("P2")
	ch.Close()

	r.Broadcast([]byte{0xAA})

	total := 0
	opener.mu.Lock()
	for _, p := range opener.ports {
		total += len(p.writes)
	}
	opener.mu.Unlock()
	if total != 2 {
		t.Errorf("broadcast reached %d ports, want 2", total)
	}
}

func TestRegistryAddMonitoredIdempotent(t *testing.T) {
	r := newTestRegistry(t, &fakeLister{}, &mockOpener{}, WithScanInterval(time.Hour))

	_, events := r.Subscribe()
	r.AddMonitored("P1")
	r.AddMonitored("P1")

	waitEvent(t, events, PortAddedToMonitoring, "P1", time.Second)
	select {
	case ev := <-events:
		t.Errorf("unexpected second event %v for %s", ev.Kind, ev.Port)
	case <-time.After(50 * time.Millisecond):
	}

	got := r.Watched()
	if len(got) != 1 || got[0] != "P1" {
		t.Errorf("Watched() = %v, want [P1]", got)
	}
}

func TestRegistryDiscoveryRemovesMissingPort(t *testing.T) {
	opener := &mockOpener{}
	lister := &fakeLister{}
	lister.set("P1")
	r := newTestRegistry(t, lister, opener)

	if err := r.Add("P1", 9600, 100*time.Millisecond, 8); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	r.OpenAll(context.Background())
	ch, _ := r.Get("P1")

	_, events := r.Subscribe()
	lister.set() // port unplugged

	waitEvent(t, events, PortRemovedFromSystem, "P1", time.Second)
	waitFor(t, time.Second, func() bool {
		_, ok := r.Get("P1")
		return !ok
	}, "port deregistration")

	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("removed channel not cancelled")
	}
}

func TestRegistryDiscoveryReconnectsWatched(t *testing.T) {
	opener := &mockOpener{}
	lister := &fakeLister{}
	r := newTestRegistry(t, lister, opener, WithRediscoveryBaudRate(9600))

	r.AddMonitored("P2")
	r.AddMonitored("P3")
	_, events := r.Subscribe()

	// Both ports appear in the same scan cycle.
	lister.set("P2", "P3")

	waitEvent(t, events, PortReconnected, "P2", time.Second)
	waitEvent(t, events, PortReconnected, "P3", time.Second)

	for _, p := range []string{"P2", "P3"} {
		ch, ok := r.Get(p)
		if !ok {
			t.Fatalf("%s not re-registered", p)
		}
		if ch.Config().BaudRate != 9600 {
			t.Errorf("%s re-registered at %d baud, want 9600", p, ch.Config().BaudRate)
		}
		waitFor(t, time.Second, ch.IsOpen, "reopen of "+p)
	}

	// Reopening is coalesced: one OpenAll per cycle, and later cycles with
	// nothing to re-register do not trigger another.
	if calls := r.openAllCalls.Load(); calls != 1 {
		t.Errorf("OpenAll called %d times, want 1", calls)
	}
	time.Sleep(100 * time.Millisecond)
	if calls := r.openAllCalls.Load(); calls != 1 {
		t.Errorf("OpenAll called %d times after extra cycles, want 1", calls)
	}
}

func TestRegistryDiscoveryAdoptsNewPorts(t *testing.T) {
	lister := &fakeLister{}
	r := newTestRegistry(t, lister, &mockOpener{})

	_, events := r.Subscribe()
	lister.set("P9")

	waitEvent(t, events, PortAddedToMonitoring, "P9", time.Second)
	// Once watched, the next cycle registers and opens it.
	waitEvent(t, events, PortReconnected, "P9", time.Second)
	waitFor(t, time.Second, func() bool {
		ch, ok := r.Get("P9")
		return ok && ch.IsOpen()
	}, "adopted port open")
}

func TestRegistryDiscoveryStatusUpdates(t *testing.T) {
	opener := &mockOpener{}
	lister := &fakeLister{}
	lister.set("P1")
	r := newTestRegistry(t, lister, opener)

	if err := r.AddWithDefaults("P1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	_, events := r.Subscribe()
	ev := waitEvent(t, events, PortStatusUpdate, "P1", time.Second)
	if ev.Connected || !ev.Available {
		t.Errorf("status = connected=%v available=%v, want closed and available", ev.Connected, ev.Available)
	}

	r.OpenAll(context.Background())
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == PortStatusUpdate && ev.Port == "P1" && ev.Connected {
				return
			}
		case <-deadline:
			t.Fatal("no connected status update after OpenAll")
		}
	}
}

func TestRegistrySubscribeUnsubscribe(t *testing.T) {
	r := newTestRegistry(t, &fakeLister{}, &mockOpener{}, WithScanInterval(time.Hour))

	id, events := r.Subscribe()
	r.AddMonitored("P1")
	waitEvent(t, events, PortAddedToMonitoring, "P1", time.Second)

	r.Unsubscribe(id)
	if _, ok := <-events; ok {
		t.Error("subscriber channel not closed by Unsubscribe")
	}
	r.Unsubscribe(id) // idempotent
}

func TestRegistryEmitPrunesStalledSubscriber(t *testing.T) {
	r := newTestRegistry(t, &fakeLister{}, &mockOpener{}, WithScanInterval(time.Hour))

	_, stalled := r.Subscribe()

	// Fill the stalled subscriber's queue and push one past capacity.
	for i := 0; i <= subscriberQueueSize; i++ {
		r.emit(Event{Kind: PortStatusUpdate, Port: "P1"})
	}

	// Pruning closes the channel, so ranging terminates with exactly the
	// events that fit the queue.
	delivered := 0
	for range stalled {
		delivered++
	}
	if delivered != subscriberQueueSize {
		t.Errorf("stalled subscriber got %d events before pruning, want %d", delivered, subscriberQueueSize)
	}

	// Delivery continues for subscribers that keep up.
	_, live := r.Subscribe()
	r.emit(Event{Kind: PortAddedToMonitoring, Port: "P2"})
	waitEvent(t, live, PortAddedToMonitoring, "P2", time.Second)
}
