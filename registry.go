package modbus

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PortLister enumerates the serial ports currently present on the system.
// The production lister is ListPorts; tests substitute their own.
type PortLister func() ([]string, error)

// subscriberQueueSize is the per-subscriber event buffer. A subscriber that
// falls this far behind is considered dead and pruned.
const subscriberQueueSize = 64

type registryConfig struct {
	defaultBaud      int
	defaultTimeout   time.Duration
	defaultQueueSize int
	rediscoverBaud   int
	scanInterval     time.Duration
	closeGrace       time.Duration
	lister           PortLister
	opener           PortOpener
	logger           zerolog.Logger
}

// RegistryOption is a functional option for configuring a registry
type RegistryOption func(*registryConfig) error

// WithDefaultBaudRate sets the baud rate used by AddWithDefaults
func WithDefaultBaudRate(rate int) RegistryOption {
	return func(c *registryConfig) error {
		if rate <= 0 {
			return ErrInvalidConfig
		}
		c.defaultBaud = rate
		return nil
	}
}

// WithDefaultReadTimeout sets the read timeout used by AddWithDefaults
func WithDefaultReadTimeout(timeout time.Duration) RegistryOption {
	return func(c *registryConfig) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.defaultTimeout = timeout
		return nil
	}
}

// WithRediscoveryBaudRate sets the baud rate used when the discovery loop
// re-registers a watched port
func WithRediscoveryBaudRate(rate int) RegistryOption {
	return func(c *registryConfig) error {
		if rate <= 0 {
			return ErrInvalidConfig
		}
		c.rediscoverBaud = rate
		return nil
	}
}

// WithScanInterval sets the discovery loop period
func WithScanInterval(interval time.Duration) RegistryOption {
	return func(c *registryConfig) error {
		if interval <= 0 {
			return ErrInvalidConfig
		}
		c.scanInterval = interval
		return nil
	}
}

// WithCloseGrace sets how long CloseAll waits for background tasks to
// observe cancellation before explicitly closing every channel
func WithCloseGrace(grace time.Duration) RegistryOption {
	return func(c *registryConfig) error {
		if grace < 0 {
			return ErrInvalidConfig
		}
		c.closeGrace = grace
		return nil
	}
}

// WithPortLister overrides how available ports are enumerated
func WithPortLister(lister PortLister) RegistryOption {
	return func(c *registryConfig) error {
		if lister == nil {
			return ErrInvalidConfig
		}
		c.lister = lister
		return nil
	}
}

// WithPortOpener overrides how every channel acquires its OS handle
func WithPortOpener(opener PortOpener) RegistryOption {
	return func(c *registryConfig) error {
		if opener == nil {
			return ErrInvalidConfig
		}
		c.opener = opener
		return nil
	}
}

// WithRegistryLogger sets the structured logger for the registry and all
// channels it creates
func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(c *registryConfig) error {
		c.logger = logger
		return nil
	}
}

// Registry owns a set of channels keyed by port path and reconciles them
// against the ports physically present on the system. It is the only
// component that decides whether a port is still there and whether it should
// be reopened; channels never attempt their own reconnection.
type Registry struct {
	cfg registryConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	channels map[string]*Channel

	watchedMu sync.Mutex
	watched   map[string]struct{}

	subMu sync.Mutex
	subs  map[string]chan Event

	openAllCalls atomic.Int64

	log zerolog.Logger
}

// NewRegistry constructs a registry and starts its discovery loop. The loop
// runs until CloseAll cancels the registry's root scope.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	cfg := registryConfig{
		defaultBaud:      115200,
		defaultTimeout:   200 * time.Millisecond,
		defaultQueueSize: 8,
		rediscoverBaud:   9600,
		scanInterval:     500 * time.Millisecond,
		closeGrace:       time.Second,
		lister:           ListPorts,
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		channels: make(map[string]*Channel),
		watched:  make(map[string]struct{}),
		subs:     make(map[string]chan Event),
		log:      cfg.logger.With().Str("component", "registry").Logger(),
	}

	go r.discoveryLoop()
	return r, nil
}

// Add registers a new auto-receive channel for path. It fails with
// ErrAlreadyRegistered when the path is already present.
func (r *Registry) Add(path string, baud int, readTimeout time.Duration, queueSize int) error {
	return r.add(path,
		WithBaudRate(baud),
		WithReadTimeout(readTimeout),
		WithQueueSize(queueSize),
		WithAutoReceive(true),
	)
}

// AddWithDefaults registers path with the registry's default baud rate,
// read timeout, and queue size.
func (r *Registry) AddWithDefaults(path string) error {
	return r.Add(path, r.cfg.defaultBaud, r.cfg.defaultTimeout, r.cfg.defaultQueueSize)
}

// AddProbe registers a transaction-only channel: the background ingestion
// task is disabled so explicit transactions own every read.
func (r *Registry) AddProbe(path string, baud int) error {
	return r.add(path,
		WithBaudRate(baud),
		WithAutoReceive(false),
	)
}

func (r *Registry) add(path string, opts ...Option) error {
	base := []Option{WithLogger(r.cfg.logger)}
	if r.cfg.opener != nil {
		base = append(base, WithOpener(r.cfg.opener))
	}
	opts = append(base, opts...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[path]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, path)
	}

	ch, err := NewChannel(r.ctx, path, opts...)
	if err != nil {
		return err
	}
	r.channels[path] = ch
	r.log.Info().Str("port", path).Msg("port registered")
	return nil
}

// Remove cancels the channel for path, permanently stopping its background
// tasks, and removes it from the registry. It returns the removed channel,
// or nil if path was not registered.
func (r *Registry) Remove(path string) *Channel {
	r.mu.Lock()
	ch, ok := r.channels[path]
	if ok {
		delete(r.channels, path)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.log.Info().Str("port", path).Msg("port removed from registry")
	ch.Cancel()
	return ch
}

// Get returns the channel registered for path.
func (r *Registry) Get(path string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[path]
	return ch, ok
}

// Ports returns the registered port paths, sorted.
func (r *Registry) Ports() []string {
	r.mu.Lock()
	paths := make([]string, 0, len(r.channels))
	for path := range r.channels {
		paths = append(paths, path)
	}
	r.mu.Unlock()
	sort.Strings(paths)
	return paths
}

// Watched returns the monitored port paths, sorted.
func (r *Registry) Watched() []string {
	r.watchedMu.Lock()
	paths := make([]string, 0, len(r.watched))
	for path := range r.watched {
		paths = append(paths, path)
	}
	r.watchedMu.Unlock()
	sort.Strings(paths)
	return paths
}

// AddMonitored marks path as watched: the discovery loop will auto-register
// it whenever it is physically present. Idempotent; emits
// PortAddedToMonitoring on the first call only.
func (r *Registry) AddMonitored(path string) {
	r.watchedMu.Lock()
	_, exists := r.watched[path]
	if !exists {
		r.watched[path] = struct{}{}
	}
	r.watchedMu.Unlock()

	if !exists {
		r.log.Info().Str("port", path).Msg("port added to monitoring")
		r.emit(Event{Kind: PortAddedToMonitoring, Port: path})
	}
}

// OpenAll concurrently opens every registered channel that is not already
// open. Individual failures are logged, not returned; the discovery loop
// retries on later cycles.
func (r *Registry) OpenAll(ctx context.Context) {
	r.openAllCalls.Add(1)
	channels := r.snapshot()

	var wg sync.WaitGroup
	for _, ch := range channels {
		if ch.IsOpen() {
			continue
		}
		wg.Add(1)
		go func(ch *Channel) {
			defer wg.Done()
			if err := ch.Open(ctx); err != nil {
				r.log.Error().Err(err).Str("port", ch.Path()).Msg("open failed")
			}
		}(ch)
	}
	wg.Wait()
}

// CloseAll cancels the registry's root scope, transitively cancelling every
// channel's scope and the discovery loop, waits the close grace period for
// tasks to react, then explicitly closes every channel as a backstop. The
// registry is not usable afterwards.
func (r *Registry) CloseAll() {
	r.log.Info().Msg("closing all ports")
	r.cancel()

	time.Sleep(r.cfg.closeGrace)

	channels := r.snapshot()
	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch *Channel) {
			defer wg.Done()
			ch.Close()
		}(ch)
	}
	wg.Wait()
}

// SendTo writes data to the channel registered for path.
func (r *Registry) SendTo(path string, data []byte) error {
	ch, ok := r.Get(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPortNotFound, path)
	}
	return ch.Send(data)
}

// Broadcast writes data to every registered channel concurrently.
// Delivery is best-effort; per-port failures are logged.
func (r *Registry) Broadcast(data []byte) {
	channels := r.snapshot()

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch *Channel) {
			defer wg.Done()
			if err := ch.Send(data); err != nil {
				r.log.Error().Err(err).Str("port", ch.Path()).Msg("broadcast failed")
			}
		}(ch)
	}
	wg.Wait()
}

// Subscribe creates an independent event delivery channel and returns it
// with the ID used to unsubscribe. Events published before the subscription
// are not replayed.
func (r *Registry) Subscribe() (string, <-chan Event) {
	id := randomID()
	ch := make(chan Event, subscriberQueueSize)
	r.subMu.Lock()
	r.subs[id] = ch
	r.subMu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (r *Registry) Unsubscribe(id string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if ch, ok := r.subs[id]; ok {
		close(ch)
		delete(r.subs, id)
	}
}

// emit fans an event out to every subscriber without blocking. A subscriber
// whose queue is full is pruned; one dead consumer never delays the others.
func (r *Registry) emit(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for id, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.log.Debug().Str("subscriber", id).Msg("pruning stalled event subscriber")
			close(ch)
			delete(r.subs, id)
		}
	}
}

// discoveryLoop reconciles registered channels against the OS port list on
// a fixed interval until the registry scope is cancelled.
func (r *Registry) discoveryLoop() {
	r.log.Debug().Msg("discovery loop started")
	defer r.log.Debug().Msg("discovery loop stopped")

	ticker := time.NewTicker(r.cfg.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}
		r.scanOnce()
	}
}

// scanOnce runs a single discovery cycle. Port and watched sets are
// snapshotted up front so no lock is held across channel operations.
func (r *Registry) scanOnce() {
	list, err := r.cfg.lister()
	if err != nil {
		r.log.Error().Err(err).Msg("listing ports failed")
		return
	}
	available := make(map[string]struct{}, len(list))
	for _, p := range list {
		available[p] = struct{}{}
	}

	// Registered ports no longer present on the system.
	for _, path := range r.Ports() {
		if _, ok := available[path]; !ok {
			r.log.Info().Str("port", path).Msg("port no longer available")
			r.emit(Event{Kind: PortRemovedFromSystem, Port: path})
			r.Remove(path)
		}
	}

	watched := make(map[string]struct{})
	r.watchedMu.Lock()
	for path := range r.watched {
		watched[path] = struct{}{}
	}
	r.watchedMu.Unlock()

	// Watched ports that are back on the system but not registered.
	reopen := false
	for _, path := range list {
		if _, ok := watched[path]; !ok {
			continue
		}
		if _, ok := r.Get(path); ok {
			continue
		}
		if err := r.AddProbe(path, r.cfg.rediscoverBaud); err != nil {
			r.log.Error().Err(err).Str("port", path).Msg("re-registration failed")
			r.emit(Event{Kind: PortConnectionFailed, Port: path, Reason: err.Error()})
			continue
		}
		r.log.Info().Str("port", path).Msg("port reconnected")
		r.emit(Event{Kind: PortReconnected, Port: path})
		reopen = true
	}

	// Ports that simply exist are adopted for monitoring.
	for _, path := range list {
		if _, ok := watched[path]; !ok {
			r.AddMonitored(path)
		}
	}

	// Status of every available, registered port.
	for _, path := range list {
		if ch, ok := r.Get(path); ok {
			r.emit(Event{
				Kind:      PortStatusUpdate,
				Port:      path,
				Connected: ch.IsOpen(),
				Available: true,
			})
		}
	}

	// One coalesced open for all ports re-registered this cycle.
	if reopen {
		r.OpenAll(r.ctx)
	}
}

func (r *Registry) snapshot() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	return channels
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}
