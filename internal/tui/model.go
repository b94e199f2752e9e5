package tui

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/internal/view"
)

// Model adapts a view.Machine to bubbletea. The machine owns the screen
// state; the model keeps the text inputs and the terminal size.
type Model struct {
	ctx     context.Context
	machine *view.Machine
	snap    view.Snapshot
	logger  *slog.Logger

	width  int
	height int

	search    textinput.Model
	searching bool
	token     textinput.Model
	field     textinput.Model
	fieldName string

	spinner spinner.Model
	help    help.Model

	// observe sees the snapshot after every update.
	observe func(view.Snapshot)
}

func newModel(ctx context.Context, machine *view.Machine, logger *slog.Logger) *Model {
	search := textinput.New()
	search.Prompt = "/"
	search.Placeholder = "name, type or content"
	search.CharLimit = 128

	token := textinput.New()
	token.Prompt = "> "
	token.Placeholder = "Paste your DNSimple API token"
	token.EchoMode = textinput.EchoPassword
	token.EchoCharacter = '•'
	token.CharLimit = 512
	token.Width = 64

	field := textinput.New()
	field.Prompt = ""
	field.CharLimit = 1024

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = flagStyle

	return &Model{
		ctx:     ctx,
		machine: machine,
		logger:  logger,
		search:  search,
		token:   token,
		field:   field,
		spinner: spin,
		help:    help.New(),
	}
}

func (m *Model) Init() tea.Cmd {
	cmd := m.lift(m.machine.Init())
	m.refresh()
	return tea.Batch(cmd, m.syncInputs(), m.spinner.Tick)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m, m.key(msg)
	case view.Event:
		return m, m.apply(msg)
	}
	return m, m.updateInputs(msg)
}

// apply feeds events to the machine and turns the commands it returns
// into bubbletea commands.
func (m *Model) apply(events ...view.Event) tea.Cmd {
	var cmds []tea.Cmd
	for _, ev := range events {
		cmds = append(cmds, m.lift(m.machine.Update(ev)))
	}
	m.refresh()
	if m.snap.Screen == view.ScreenQuit {
		return tea.Quit
	}
	cmds = append(cmds, m.syncInputs())
	return tea.Batch(cmds...)
}

func (m *Model) refresh() {
	m.snap = m.machine.Snapshot()
	if m.observe != nil {
		m.observe(m.snap)
	}
}

func (m *Model) lift(cmds []view.Cmd) tea.Cmd {
	out := make([]tea.Cmd, 0, len(cmds))
	for _, c := range cmds {
		if c == nil {
			continue
		}
		out = append(out, func() (msg tea.Msg) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("view command panicked", slog.String("panic", fmt.Sprint(r)))
					msg = nil
				}
			}()
			if ev := c(m.ctx); ev != nil {
				return ev
			}
			return nil
		})
	}
	return tea.Batch(out...)
}

// syncInputs focuses the text input that belongs to the current screen and
// loads it from the snapshot when the focused field changed.
func (m *Model) syncInputs() tea.Cmd {
	s := m.snap
	var cmds []tea.Cmd

	if s.Screen == view.ScreenAuthPrompt {
		if !m.token.Focused() {
			m.token.Reset()
			cmds = append(cmds, m.token.Focus(), textinput.Blink)
		}
	} else if m.token.Focused() {
		m.token.Blur()
		m.token.Reset()
	}

	ed := s.Editor
	if s.Screen == view.ScreenRecordEditor && ed != nil && ed.Focus >= 0 && ed.Focus < len(ed.Fields) {
		f := ed.Fields[ed.Focus]
		if f.Name != m.fieldName {
			m.fieldName = f.Name
			m.field.SetValue(f.Value)
			m.field.CursorEnd()
			cmds = append(cmds, m.field.Focus(), textinput.Blink)
		}
	} else if m.fieldName != "" {
		m.fieldName = ""
		m.field.Blur()
	}

	if m.searching && s.Screen != view.ScreenRecordList {
		m.searching = false
		m.search.Blur()
	}
	return tea.Batch(cmds...)
}

func (m *Model) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch {
	case m.token.Focused():
		m.token, cmd = m.token.Update(msg)
	case m.fieldName != "":
		m.field, cmd = m.field.Update(msg)
	case m.searching:
		m.search, cmd = m.search.Update(msg)
	}
	return cmd
}

func (m *Model) key(msg tea.KeyMsg) tea.Cmd {
	if matches(msg, keys.ForceQuit) {
		return m.apply(view.Quit{})
	}
	switch m.snap.Screen {
	case view.ScreenConfirm:
		return m.apply(confirmEvents(msg)...)
	case view.ScreenAuthPrompt:
		return m.authKey(msg)
	case view.ScreenRecordEditor:
		return m.editorKey(msg)
	}
	if m.searching {
		return m.searchKey(msg)
	}
	if m.snap.Screen == view.ScreenRecordList && matches(msg, keys.Search) {
		m.searching = true
		m.search.SetValue(m.snap.Filter)
		m.search.CursorEnd()
		return tea.Batch(m.search.Focus(), textinput.Blink)
	}
	events := listEvents(msg, m.snap)
	if len(events) == 1 {
		if s, ok := events[0].(view.Search); ok && s.Text == "" {
			m.search.Reset()
		}
	}
	return m.apply(events...)
}

func confirmEvents(msg tea.KeyMsg) []view.Event {
	switch {
	case matches(msg, keys.Confirm):
		return []view.Event{view.Confirm{}}
	case matches(msg, keys.Decline):
		return []view.Event{view.Cancel{}}
	}
	return nil
}

// listEvents maps a key on a list screen.
func listEvents(msg tea.KeyMsg, s view.Snapshot) []view.Event {
	switch {
	case matches(msg, keys.Up):
		return []view.Event{view.Up{}}
	case matches(msg, keys.Down):
		return []view.Event{view.Down{}}
	case matches(msg, keys.Open):
		return []view.Event{view.Select{}}
	case matches(msg, keys.Back):
		if s.Screen == view.ScreenRecordList && s.Filter != "" {
			return []view.Event{view.Search{}}
		}
		if s.Loading {
			return []view.Event{view.Cancel{}}
		}
		return []view.Event{view.Back{}}
	case matches(msg, keys.Quit):
		return []view.Event{view.Quit{}}
	case matches(msg, keys.Refresh):
		return []view.Event{view.Refresh{}}
	case matches(msg, keys.Cancel):
		return []view.Event{view.Cancel{}}
	}
	if s.Screen != view.ScreenRecordList {
		return nil
	}
	switch {
	case matches(msg, keys.Edit):
		return []view.Event{view.Edit{}}
	case matches(msg, keys.New):
		return []view.Event{view.New{}}
	case matches(msg, keys.Delete):
		return []view.Event{view.Delete{}}
	case matches(msg, keys.Retry):
		return []view.Event{view.Retry{}}
	case matches(msg, keys.Discard):
		return []view.Event{view.Discard{}}
	case matches(msg, keys.KeepLocal):
		return []view.Event{view.Resolve{Resolution: store.KeepLocal}}
	case matches(msg, keys.KeepTheir):
		return []view.Event{view.Resolve{Resolution: store.KeepRemote}}
	case matches(msg, keys.Merge):
		return []view.Event{view.Resolve{Resolution: store.Merge}}
	}
	return nil
}

func (m *Model) authKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case matches(msg, keys.Submit):
		return m.apply(view.Save{})
	case matches(msg, keys.Close):
		m.token.Reset()
		return m.apply(view.Cancel{})
	}
	before := m.token.Value()
	var cmd tea.Cmd
	m.token, cmd = m.token.Update(msg)
	if v := m.token.Value(); v != before {
		return tea.Batch(cmd, m.apply(view.SetField{Field: "token", Value: v}))
	}
	return cmd
}

func (m *Model) editorKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case matches(msg, keys.Close):
		return m.apply(view.Back{})
	case matches(msg, keys.Save):
		return m.apply(view.Save{})
	case matches(msg, keys.NextField):
		return m.apply(view.Down{})
	case matches(msg, keys.PrevField):
		return m.apply(view.Up{})
	}
	if m.fieldName == "" {
		return nil
	}
	before := m.field.Value()
	var cmd tea.Cmd
	m.field, cmd = m.field.Update(msg)
	if v := m.field.Value(); v != before {
		return tea.Batch(cmd, m.apply(view.SetField{Field: m.fieldName, Value: v}))
	}
	return cmd
}

func (m *Model) searchKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case matches(msg, keys.Submit):
		m.searching = false
		m.search.Blur()
		return nil
	case matches(msg, keys.Close):
		m.searching = false
		m.search.Blur()
		m.search.Reset()
		return m.apply(view.Search{})
	}
	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if v := m.search.Value(); v != before {
		return tea.Batch(cmd, m.apply(view.Search{Text: v}))
	}
	return cmd
}
