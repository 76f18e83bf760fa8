package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgOpened MsgKind = iota
	MsgSaved
)

type openedData struct {
	url string
	err error
}

type savedData struct {
	path  string
	count int
	err   error
}

// openedMsg is the constructor for [MsgOpened]
func openedMsg(url string, err error) Msg {
	return Msg{kind: MsgOpened, data: openedData{url, err}}
}

// savedMsg is the constructor for [MsgSaved]
func savedMsg(path string, count int, err error) Msg {
	return Msg{kind: MsgSaved, data: savedData{path, count, err}}
}
