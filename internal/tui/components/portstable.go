package components

import (
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"

	"github.com/allbin/go-modbus/internal/tui/colors"
	"github.com/allbin/go-modbus/internal/tui/styles"
)

const (
	columnPort      = "port"
	columnStatus    = "status"
	columnWatched   = "watched"
	columnLastEvent = "event"
)

// PortState is one row of the monitor: the live view of a single port as
// derived from registry events.
type PortState struct {
	Path      string
	Connected bool
	Available bool
	Watched   bool
	LastEvent string
}

// PortsTable renders the per-port state table of the watch view.
type PortsTable struct {
	table table.Model
	ports map[string]*PortState
}

func NewPortsTable() *PortsTable {
	columns := []table.Column{
		table.NewColumn(columnPort, "Port", 22),
		table.NewColumn(columnStatus, "Status", 14),
		table.NewColumn(columnWatched, "Watched", 9),
		table.NewFlexColumn(columnLastEvent, "Last Event", 1),
	}

	t := table.New(columns).
		BorderRounded().
		WithBaseStyle(lipgloss.NewStyle().
			Foreground(colors.Text).
			BorderForeground(colors.Surface1)).
		HeaderStyle(lipgloss.NewStyle().
			Foreground(colors.Mauve).
			Bold(true))

	return &PortsTable{
		table: t,
		ports: make(map[string]*PortState),
	}
}

// Apply merges a port state change into the table.
func (pt *PortsTable) Apply(state PortState) {
	existing, ok := pt.ports[state.Path]
	if !ok {
		pt.ports[state.Path] = &state
	} else {
		existing.Connected = state.Connected
		existing.Available = state.Available
		existing.Watched = existing.Watched || state.Watched
		if state.LastEvent != "" {
			existing.LastEvent = state.LastEvent
		}
	}
	pt.rebuild()
}

// Drop removes a port that disappeared from the system.
func (pt *PortsTable) Drop(path string) {
	delete(pt.ports, path)
	pt.rebuild()
}

func (pt *PortsTable) Len() int {
	return len(pt.ports)
}

func (pt *PortsTable) ConnectedCount() int {
	n := 0
	for _, p := range pt.ports {
		if p.Connected {
			n++
		}
	}
	return n
}

func (pt *PortsTable) WatchedCount() int {
	n := 0
	for _, p := range pt.ports {
		if p.Watched {
			n++
		}
	}
	return n
}

func (pt *PortsTable) SetWidth(width int) {
	pt.table = pt.table.WithTargetWidth(width)
}

func (pt *PortsTable) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	pt.table, cmd = pt.table.Update(msg)
	return cmd
}

func (pt *PortsTable) View() string {
	return pt.table.View()
}

func (pt *PortsTable) rebuild() {
	paths := make([]string, 0, len(pt.ports))
	for path := range pt.ports {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	rows := make([]table.Row, 0, len(paths))
	for _, path := range paths {
		p := pt.ports[path]
		watched := ""
		if p.Watched {
			watched = styles.StatusWatchedStyle.Render("✓")
		}
		rows = append(rows, table.NewRow(table.RowData{
			columnPort:      path,
			columnStatus:    statusCell(p),
			columnWatched:   watched,
			columnLastEvent: p.LastEvent,
		}))
	}
	pt.table = pt.table.WithRows(rows)
}

func statusCell(p *PortState) string {
	switch {
	case p.Connected:
		return styles.StatusConnectedStyle.Render("connected")
	case p.Available:
		return styles.StatusDisconnectedStyle.Render("closed")
	default:
		return styles.StatusUnavailableStyle.Render("absent")
	}
}
