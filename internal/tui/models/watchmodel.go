package models

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	modbus "github.com/allbin/go-modbus"
	"github.com/allbin/go-modbus/internal/tui/components"
	"github.com/allbin/go-modbus/internal/tui/keys"
	"github.com/allbin/go-modbus/internal/tui/styles"
)

const eventLogSize = 8

// EventMsg wraps a registry lifecycle event for the bubbletea loop.
type EventMsg struct {
	Event modbus.Event
	At    time.Time
}

// subscriptionClosedMsg signals that the registry closed our event stream.
type subscriptionClosedMsg struct{}

// WatchModel is the live port monitor: it subscribes to a registry and
// renders every port's state as lifecycle events arrive. The registry is
// owned by the caller; quitting the model does not shut it down.
type WatchModel struct {
	registry *modbus.Registry
	subID    string
	events   <-chan modbus.Event

	ports     *components.PortsTable
	statusBar *components.StatusBar
	eventLog  []string
	keys      keys.WatchKeys
	help      help.Model

	width  int
	closed bool
}

func NewWatchModel(registry *modbus.Registry) *WatchModel {
	subID, events := registry.Subscribe()

	return &WatchModel{
		registry:  registry,
		subID:     subID,
		events:    events,
		ports:     components.NewPortsTable(),
		statusBar: components.NewStatusBar(),
		keys:      keys.NewWatchKeys(),
		help:      help.New(),
	}
}

func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.statusBar.Tick())
}

// waitForEvent blocks on the subscription until the next lifecycle event.
func (m *WatchModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return subscriptionClosedMsg{}
		}
		return EventMsg{Event: ev, At: time.Now()}
	}
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.ports.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.registry.Unsubscribe(m.subID)
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil

		case key.Matches(msg, m.keys.OpenAll):
			registry := m.registry
			return m, func() tea.Msg {
				registry.OpenAll(context.Background())
				return nil
			}

		case key.Matches(msg, m.keys.CloseAll):
			// Close the handles only; discovery keeps running and the
			// ports are reopened by 'o' or by rediscovery.
			registry := m.registry
			return m, func() tea.Msg {
				for _, path := range registry.Ports() {
					if ch, ok := registry.Get(path); ok {
						ch.Close()
					}
				}
				return nil
			}

		case key.Matches(msg, m.keys.Clear):
			m.eventLog = nil
			return m, nil
		}

	case EventMsg:
		m.applyEvent(msg)
		return m, m.waitForEvent()

	case subscriptionClosedMsg:
		m.closed = true
		return m, tea.Quit
	}

	var cmds []tea.Cmd
	cmds = append(cmds, m.statusBar.Update(msg))
	cmds = append(cmds, m.ports.Update(msg))
	return m, tea.Batch(cmds...)
}

func (m *WatchModel) applyEvent(msg EventMsg) {
	ev := msg.Event

	switch ev.Kind {
	case modbus.PortRemovedFromSystem:
		m.ports.Drop(ev.Port)
	case modbus.PortAddedToMonitoring:
		m.ports.Apply(components.PortState{
			Path:      ev.Port,
			Watched:   true,
			LastEvent: ev.Kind.String(),
		})
	case modbus.PortStatusUpdate:
		m.ports.Apply(components.PortState{
			Path:      ev.Port,
			Connected: ev.Connected,
			Available: ev.Available,
		})
	default:
		m.ports.Apply(components.PortState{
			Path:      ev.Port,
			Available: true,
			LastEvent: ev.Kind.String(),
		})
	}

	m.statusBar.SetCounts(m.ports.ConnectedCount(), m.ports.Len(), m.ports.WatchedCount())

	// Status updates fire every scan cycle; logging them would drown the
	// interesting events.
	if ev.Kind != modbus.PortStatusUpdate {
		m.statusBar.SetLastEvent(fmt.Sprintf("%s: %s", ev.Port, ev.Kind))
		m.logEvent(msg)
	}
}

func (m *WatchModel) logEvent(msg EventMsg) {
	ev := msg.Event
	line := fmt.Sprintf("%s %s %s",
		styles.EventTimeStyle.Render(msg.At.Format("15:04:05")),
		styles.EventPortStyle.Render(ev.Port),
		ev.Kind)
	if ev.Reason != "" {
		line += " " + styles.EventWarnStyle.Render(ev.Reason)
	}

	m.eventLog = append(m.eventLog, line)
	if len(m.eventLog) > eventLogSize {
		m.eventLog = m.eventLog[len(m.eventLog)-eventLogSize:]
	}
}

func (m *WatchModel) View() string {
	if m.closed {
		return "event stream closed\n"
	}

	sections := []string{
		styles.TitleStyle.Render("Modbus Port Monitor"),
		m.ports.View(),
	}
	if len(m.eventLog) > 0 {
		sections = append(sections, lipgloss.JoinVertical(lipgloss.Left, m.eventLog...))
	}
	sections = append(sections,
		m.statusBar.View(),
		styles.HelpStyle.Render(m.help.View(m.keys)),
	)

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}
