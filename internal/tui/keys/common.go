package keys

import "github.com/charmbracelet/bubbles/key"

// Common key bindings used across TUI commands
type CommonKeys struct {
	Quit key.Binding
	Help key.Binding
}

func NewCommonKeys() CommonKeys {
	return CommonKeys{
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
	}
}

// Watch-specific key bindings for the port monitor
type WatchKeys struct {
	CommonKeys
	OpenAll  key.Binding
	CloseAll key.Binding
	Clear    key.Binding
}

func NewWatchKeys() WatchKeys {
	return WatchKeys{
		CommonKeys: NewCommonKeys(),
		OpenAll: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open all ports"),
		),
		CloseAll: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "close all ports"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear event log"),
		),
	}
}

func (k WatchKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.OpenAll, k.CloseAll, k.Clear, k.Quit}
}

func (k WatchKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.OpenAll, k.CloseAll, k.Clear},
		{k.Help, k.Quit},
	}
}
