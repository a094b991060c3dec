package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/allbin/go-modbus/internal/tui/colors"
	"github.com/allbin/go-modbus/internal/tui/styles"
)

// StatusBar summarizes the registry state at the bottom of the watch view:
// port counts, the most recent lifecycle event, and a scan activity
// indicator.
type StatusBar struct {
	spinner   spinner.Model
	width     int
	connected int
	total     int
	watched   int
	lastEvent string
}

func NewStatusBar() *StatusBar {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = s.Style.Foreground(colors.Teal)

	return &StatusBar{
		spinner:   s,
		lastEvent: "waiting for events...",
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetCounts(connected, total, watched int) {
	sb.connected = connected
	sb.total = total
	sb.watched = watched
}

func (sb *StatusBar) SetLastEvent(event string) {
	sb.lastEvent = event
}

func (sb *StatusBar) Tick() tea.Cmd {
	return sb.spinner.Tick
}

func (sb *StatusBar) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	sb.spinner, cmd = sb.spinner.Update(msg)
	return cmd
}

func (sb *StatusBar) View() string {
	counts := styles.StatusBarAccentStyle.Render(
		fmt.Sprintf("%d/%d open", sb.connected, sb.total))
	watched := styles.StatusBarStyle.Render(
		fmt.Sprintf("%d watched", sb.watched))
	event := styles.StatusBarStyle.Render(sb.lastEvent)

	bar := fmt.Sprintf("%s %s • %s • %s", sb.spinner.View(), counts, watched, event)
	if sb.width > 0 && len(bar) > sb.width {
		bar = bar[:sb.width]
	}
	return strings.TrimRight(bar, " ")
}
