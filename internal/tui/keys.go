package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type keyMap struct {
	ForceQuit key.Binding
	Quit      key.Binding
	Up        key.Binding
	Down      key.Binding
	Open      key.Binding
	Back      key.Binding
	Refresh   key.Binding
	Cancel    key.Binding
	Search    key.Binding
	Edit      key.Binding
	New       key.Binding
	Delete    key.Binding
	Retry     key.Binding
	Discard   key.Binding
	KeepLocal key.Binding
	KeepTheir key.Binding
	Merge     key.Binding

	Confirm key.Binding
	Decline key.Binding

	Save      key.Binding
	NextField key.Binding
	PrevField key.Binding
	Close     key.Binding
	Submit    key.Binding
}

var keys = keyMap{
	ForceQuit: key.NewBinding(key.WithKeys("ctrl+c")),
	Quit:      key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
	Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Open:      key.NewBinding(key.WithKeys("enter", "right", "l"), key.WithHelp("enter", "open")),
	Back:      key.NewBinding(key.WithKeys("esc", "left", "h"), key.WithHelp("esc", "back")),
	Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Cancel:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel load")),
	Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Edit:      key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
	New:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
	Delete:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	Retry:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "retry")),
	Discard:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "discard")),
	KeepLocal: key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "keep mine")),
	KeepTheir: key.NewBinding(key.WithKeys("T"), key.WithHelp("T", "take theirs")),
	Merge:     key.NewBinding(key.WithKeys("M"), key.WithHelp("M", "merge")),

	Confirm: key.NewBinding(key.WithKeys("y", "Y", "enter"), key.WithHelp("y", "confirm")),
	Decline: key.NewBinding(key.WithKeys("n", "N", "esc"), key.WithHelp("n", "cancel")),

	Save:      key.NewBinding(key.WithKeys("enter", "ctrl+s"), key.WithHelp("enter", "save")),
	NextField: key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
	PrevField: key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev field")),
	Close:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "sign in")),
}

func matches(msg tea.KeyMsg, binding key.Binding) bool {
	return key.Matches(msg, binding)
}
