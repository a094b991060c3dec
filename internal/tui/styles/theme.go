package styles

import (
	"github.com/allbin/go-modbus/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Header styles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	// Port status styles
	StatusConnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Green).
				Bold(true)

	StatusDisconnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	StatusUnavailableStyle = lipgloss.NewStyle().
				Foreground(colors.Overlay0)

	StatusWatchedStyle = lipgloss.NewStyle().
				Foreground(colors.Yellow)

	// Event log styles
	EventTimeStyle = lipgloss.NewStyle().
			Foreground(colors.Subtext0)

	EventPortStyle = lipgloss.NewStyle().
			Foreground(colors.Blue).
			Bold(true)

	EventWarnStyle = lipgloss.NewStyle().
			Foreground(colors.Peach)

	// Status bar styles
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(colors.Text).
			Background(colors.Surface0).
			Padding(0, 1)

	StatusBarAccentStyle = lipgloss.NewStyle().
				Foreground(colors.Teal).
				Background(colors.Surface0).
				Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(colors.Overlay0)
)
