package console

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Edit    key.Binding
	Toggle  key.Binding
	Commit  key.Binding
	Abort   key.Binding
	Apply   key.Binding
	Cancel  key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:    key.NewBinding(key.WithKeys("left", "h", "shift+tab"), key.WithHelp("←/h", "left")),
		Right:   key.NewBinding(key.WithKeys("right", "l", "tab"), key.WithHelp("→/l", "right")),
		Edit:    key.NewBinding(key.WithKeys("enter", "e"), key.WithHelp("enter", "edit")),
		Toggle:  key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "toggle")),
		Commit:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "keep")),
		Abort:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "discard")),
		Apply:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "apply changes")),
		Cancel:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Edit, k.Toggle, k.Apply, k.Cancel, k.Refresh, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Edit, k.Toggle, k.Commit, k.Abort},
		{k.Apply, k.Cancel, k.Refresh, k.Quit},
	}
}

type editKeys struct{ keyMap }

func (k editKeys) ShortHelp() []key.Binding { return []key.Binding{k.Commit, k.Abort} }
