package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the browser.
type keyMap struct {
	enter    key.Binding
	back     key.Binding
	listened key.Binding
	open     key.Binding
	save     key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open genre")),
		back:     key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "genres")),
		listened: key.NewBinding(key.WithKeys("l", " "), key.WithHelp("l", "toggle listened")),
		open:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open in browser")),
		save:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save marks")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) genreHelp() []key.Binding {
	return []key.Binding{k.enter, k.save, k.quit}
}

func (k keyMap) albumHelp() []key.Binding {
	return []key.Binding{k.listened, k.open, k.save, k.back, k.quit}
}
