package view

import (
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Screen identifies a state of the machine.
type Screen string

const (
	ScreenAccountList  Screen = "accounts"
	ScreenZoneList     Screen = "zones"
	ScreenRecordList   Screen = "records"
	ScreenRecordEditor Screen = "editor"
	ScreenConfirm      Screen = "confirm"
	ScreenAuthPrompt   Screen = "auth"
	ScreenQuit         Screen = "quit"
)

// Row is one line of a list screen.
type Row struct {
	// Key identifies the row: account id, zone id or record key.
	Key     string
	Columns []string
	// State is the sync state of a record row.
	State model.RecordState
	// Error is the inline error annotation of the row.
	Error string
	// Busy is true while a commit for the row is in flight.
	Busy bool
}

// Field is one input of the editor or login prompt.
type Field struct {
	Name  string
	Label string
	Value string
}

// EditorView is the render model of the record editor.
type EditorView struct {
	Title  string
	Fields []Field
	Focus  int
	Err    string
	Saving bool
	// Remote is the provider's value when editing a conflicting record.
	Remote *model.Record
}

// Snapshot is everything a renderer needs to draw the current screen.
type Snapshot struct {
	Screen  Screen
	Title   string
	Account model.Account
	Zone    model.Zone
	Header  []string
	Rows    []Row
	Cursor  int
	Filter  string
	Loading bool
	Stale   bool
	Status  string
	Editor  *EditorView
	Prompt  string
	Auth    *EditorView
	// Under is the screen a prompt was opened over.
	Under Screen
}

// Selected returns the highlighted row.
func (s Snapshot) Selected() (Row, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Rows) {
		return Row{}, false
	}
	return s.Rows[s.Cursor], true
}
