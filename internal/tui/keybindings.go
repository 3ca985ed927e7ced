package tui

import "github.com/charmbracelet/bubbles/key"

// PrefixKey arms the console's own bindings. Every other key goes to the
// active session.
const PrefixKey = "ctrl+a"

// KeyMap defines the bindings available after the prefix.
type KeyMap struct {
	// Sessions
	New      key.Binding
	Close    key.Binding
	CloseAll key.Binding
	Next     key.Binding
	Prev     key.Binding
	Jump     key.Binding

	// Panel and notifications
	Panel   key.Binding
	Refresh key.Binding
	Dismiss key.Binding
	ScrollU key.Binding
	ScrollD key.Binding

	// Control
	SendPrefix key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// DefaultKeyMap provides the default key bindings.
var DefaultKeyMap = KeyMap{
	New: key.NewBinding(
		key.WithKeys("n", "c"),
		key.WithHelp("n", "new session"),
	),
	Close: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "close session"),
	),
	CloseAll: key.NewBinding(
		key.WithKeys("X"),
		key.WithHelp("X", "close all"),
	),
	Next: key.NewBinding(
		key.WithKeys("]", "tab", "down", "j"),
		key.WithHelp("]", "next session"),
	),
	Prev: key.NewBinding(
		key.WithKeys("[", "shift+tab", "up", "k"),
		key.WithHelp("[", "previous session"),
	),
	Jump: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("1-9", "switch to session"),
	),
	Panel: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "toggle panel"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh governance"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "dismiss toast"),
	),
	ScrollU: key.NewBinding(
		key.WithKeys("pgup", "K"),
		key.WithHelp("pgup", "scroll panel up"),
	),
	ScrollD: key.NewBinding(
		key.WithKeys("pgdown", "J"),
		key.WithHelp("pgdn", "scroll panel down"),
	),
	SendPrefix: key.NewBinding(
		key.WithKeys("a", PrefixKey),
		key.WithHelp("a", "send ctrl+a"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "detach and quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.New, k.Close, k.Next, k.Panel, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.New, k.Close, k.CloseAll, k.Next, k.Prev, k.Jump},
		{k.Panel, k.Refresh, k.Dismiss, k.ScrollU, k.ScrollD},
		{k.SendPrefix, k.Help, k.Quit},
	}
}
