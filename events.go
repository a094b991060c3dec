package modbus

// EventKind discriminates registry lifecycle events.
type EventKind int

const (
	// PortAddedToMonitoring fires when a port identifier joins the watched
	// set, whether requested explicitly or auto-adopted by discovery.
	PortAddedToMonitoring EventKind = iota
	// PortRemovedFromSystem fires when a registered port disappears from
	// the OS port list.
	PortRemovedFromSystem
	// PortReconnected fires when a watched port reappears and is
	// re-registered by the discovery loop.
	PortReconnected
	// PortConnectionFailed fires when re-registration of a watched port
	// fails; Reason carries the cause.
	PortConnectionFailed
	// PortStatusUpdate reports the current connectivity of an available,
	// registered port once per discovery cycle.
	PortStatusUpdate
)

func (k EventKind) String() string {
	switch k {
	case PortAddedToMonitoring:
		return "added to monitoring"
	case PortRemovedFromSystem:
		return "removed from system"
	case PortReconnected:
		return "reconnected"
	case PortConnectionFailed:
		return "connection failed"
	case PortStatusUpdate:
		return "status update"
	default:
		return "unknown event"
	}
}

// Event is an immutable registry lifecycle notification. Events are
// broadcast once and not replayed to late subscribers; each subscriber sees
// FIFO order within its own stream only.
type Event struct {
	Kind EventKind
	Port string

	// Reason is set for PortConnectionFailed.
	Reason string

	// Connected and Available are set for PortStatusUpdate.
	Connected bool
	Available bool
}
