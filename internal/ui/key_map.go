package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	keep      key.Binding
	remove    key.Binding
	open      key.Binding
	decisions key.Binding
	retry     key.Binding
	back      key.Binding
	quit      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		keep:      key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "keep")),
		remove:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "remove")),
		open:      key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "play preview")),
		decisions: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "decisions")),
		retry:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "retry")),
		back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.keep, k.remove, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.keep, k.remove, k.open},
		{k.decisions, k.back, k.retry},
		{k.quit},
	}
}
